// Command play runs the story in the terminal with the soundscape on the
// local speaker.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"ambient-novel/internal/app"
	"ambient-novel/internal/audio/output"
	"ambient-novel/internal/config"
	"ambient-novel/internal/logger"
	"ambient-novel/internal/session"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	// В терминале логи мешают тексту: только предупреждения и в stderr, если файл не задан
	logCfg := cfg.Logger()
	logCfg.Encoding = "console"
	if logCfg.OutputPath == "" {
		logCfg.OutputPath = "stderr"
		logCfg.Level = "warn"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("Player stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()
	buildCtx, cancel := context.WithTimeout(ctx, time.Minute)
	application, err := app.Build(buildCtx, cfg, log)
	cancel()
	if err != nil {
		return err
	}
	defer application.Close()

	sessions := session.NewManager(application.Deps, 24*time.Hour)
	defer sessions.Close()

	s, err := sessions.Create(ctx, "terminal")
	if err != nil {
		return err
	}

	speaker, err := output.NewSpeaker(s.Engine(), s.Engine().SampleRate(), log)
	if err != nil {
		log.Warn("No audio output, playing silently", zap.Error(err))
	} else {
		_ = speaker.Start()
		defer speaker.Stop()
	}
	// Let the soundscape fade out before the speaker goes quiet.
	defer func() {
		select {
		case <-s.End():
		case <-time.After(cfg.AudioCrossfade + cfg.AudioStopMargin + time.Second):
		}
	}()

	p := newPrinter(os.Stdout)
	p.help()
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	p.snapshot(snap)

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		cmd := parseCommand(in.Text())
		var next session.Snapshot
		switch cmd.act {
		case actQuit:
			return nil
		case actHelp:
			p.help()
			continue
		case actInvalid:
			p.status("Unknown command. Type ? for help.")
			continue
		case actAdvance:
			if snap.Line == snap.LineCount-1 {
				p.status("Pick a choice, or r to restart.")
				continue
			}
			next, err = s.Advance(ctx)
		case actChoose:
			if cmd.choice >= len(snap.Choices) {
				p.status("No such choice.")
				continue
			}
			next, err = s.Choose(ctx, snap.Choices[cmd.choice].NextScene)
		case actRestart:
			next, err = s.Restart(ctx)
		case actMute:
			next, err = s.SetMuted(ctx, !snap.Muted)
			if err == nil {
				p.status("Sound %s.", onOff(!next.Muted))
				snap = next
				continue
			}
		case actNarration:
			next, err = s.SetNarration(ctx, !snap.Narration)
			if err == nil {
				p.status("Narration %s.", onOff(next.Narration))
				snap = next
				continue
			}
		}
		if err != nil {
			p.fail(err)
			continue
		}
		snap = next
		p.snapshot(snap)
	}
	return in.Err()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
