package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/preetsinghmakkar/SkillSwap/internal/call"
	"github.com/preetsinghmakkar/SkillSwap/internal/middlewares"
	"github.com/preetsinghmakkar/SkillSwap/internal/negotiation"
	"github.com/preetsinghmakkar/SkillSwap/internal/signaling"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCallCmd(v *viper.Viper) *cobra.Command {
	var (
		token string
		room  string
		stay  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Join a call room as a headless participant",
		Long:  "call connects to the signaling coordinator, joins a room and negotiates a peer connection with everyone in it. It runs until interrupted, or for --for when set.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			participant, err := participantFromToken(token)
			if err != nil {
				return err
			}

			factory, media, err := negotiation.NewDefaultStack(cfg.STUNURLs)
			if err != nil {
				return fmt.Errorf("set up media: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if stay > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, stay)
				defer cancel()
			}

			client := signaling.NewClient(signaling.Options{
				URL:         cfg.SignalingURL,
				Token:       token,
				MaxAttempts: cfg.ReconnectMaxAttempts,
				BaseDelay:   cfg.ReconnectBaseDelay,
			})
			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer client.Close()

			out := &lockedWriter{w: cmd.OutOrStdout()}
			c, err := call.Join(ctx, client, call.Options{
				RoomID:        room,
				ParticipantID: participant,
				Factory:       factory,
				Media:         media,
				Timeout:       cfg.NegotiationTimeout,
				OnPeerEvent: func(ev negotiation.Event) {
					if ev.Err != nil {
						fmt.Fprintf(out, "%s %s: %v\n", ev.Peer.ParticipantID, ev.State, ev.Err)
						return
					}
					fmt.Fprintf(out, "%s %s\n", ev.Peer.ParticipantID, ev.State)
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "joined %s as %s\n", room, c.Channel())

			select {
			case <-ctx.Done():
			case <-c.Done():
			}
			return errors.Join(c.Err(), c.Leave())
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "access token for the signaling socket")
	cmd.Flags().StringVar(&room, "room", "", "room id to join")
	cmd.Flags().DurationVar(&stay, "for", 0, "leave after this long")
	cmd.Flags().String("signaling-url", "", "signaling websocket url")
	cmd.Flags().Duration("negotiation-timeout", 30*time.Second, "time a peer may take to connect")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("room")
	bindFlags(v, cmd, map[string]string{
		"SIGNALING_URL":       "signaling-url",
		"NEGOTIATION_TIMEOUT": "negotiation-timeout",
	})
	return cmd
}

// participantFromToken reads the participant id the coordinator will see.
// The signature is checked by the server, not here.
func participantFromToken(token string) (string, error) {
	var claims middlewares.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if claims.UserID != "" {
		return claims.UserID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", errors.New("token carries no user id")
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
