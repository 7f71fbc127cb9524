package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voicemesh/voicemesh/internal/adapters/rtc"
	"github.com/voicemesh/voicemesh/internal/config"
	"github.com/voicemesh/voicemesh/internal/core"
	"github.com/voicemesh/voicemesh/internal/media"
	"github.com/voicemesh/voicemesh/internal/mesh"
	sig "github.com/voicemesh/voicemesh/internal/signal"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	client, err := sig.Dial(ctx, cfg.RelayURL, sig.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect to relay")
	}

	gate := media.NewMuteGate()
	neg := mesh.New(client, rtc.Factory(rtc.ConfigWithSTUN(cfg.STUNServers)), gate)

	gate.OnTrackChange(neg.OnLocalTrackChanged)
	gate.OnToggle(neg.Mic().Publish)

	neg.OnPeerJoined(func(id core.PeerID) {
		log.Info().Str("peer", string(id)).Msg("peer joined")
	})
	neg.OnPeerLeft(func(id core.PeerID) {
		log.Info().Str("peer", string(id)).Msg("peer left")
	})
	neg.OnRemoteTrack(func(id core.PeerID, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go drainTrack(ctx, id, track)
	})
	neg.Mic().OnChange(func(id core.PeerID, enabled bool) {
		log.Info().Str("peer", string(id)).Bool("mic", enabled).Msg("remote mic status")
	})

	client.OnMessage(neg.HandleMessage)

	if cfg.AudioFile != "" {
		src, err := media.NewOggSource(cfg.AudioFile)
		if err != nil {
			log.Fatal().Err(err).Msg("open audio source")
		}
		gate.SetTrack(src.Track())
		go func() {
			if err := src.Run(ctx); err != nil {
				log.Error().Err(err).Msg("audio source stopped")
			}
		}()
	}

	go readCommands(cancel, gate)

	if err := client.Run(ctx); err != nil {
		log.Error().Err(err).Msg("signaling connection lost")
	}
	neg.Close()
	log.Info().Msg("client exited")
}

// drainTrack consumes inbound RTP so the receiver keeps flowing. A real
// consumer would hand the packets to a playout pipeline.
func drainTrack(ctx context.Context, id core.PeerID, track *webrtc.TrackRemote) {
	var count int
	for ctx.Err() == nil {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("peer", string(id)).Msg("remote track ended")
			return
		}
		count++
		if count%1000 == 0 {
			logPacket(id, pkt, count)
		}
	}
}

func logPacket(id core.PeerID, pkt *rtp.Packet, count int) {
	log.Debug().Str("peer", string(id)).
		Uint16("seq", pkt.SequenceNumber).
		Int("packets", count).Msg("receiving audio")
}

// readCommands is the tiny interactive surface: m toggles the mic, q quits.
func readCommands(cancel context.CancelFunc, gate *media.MuteGate) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "m", "mute", "unmute":
			enabled := gate.Toggle()
			log.Info().Bool("mic", enabled).Msg("mic toggled")
		case "q", "quit":
			cancel()
			return
		}
	}
}
