// Command racebot is a headless racer. It connects to a game server, joins
// every race and drives the track with an autopilot, running the full client
// simulation: vehicle dynamics, terrain chunks, progress tracking and sync.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/race/arcade/config"
	"github.com/race/arcade/internal/client"
	"github.com/race/arcade/internal/logging"
	"github.com/race/arcade/internal/network"
	"github.com/race/arcade/internal/progress"
	"github.com/race/arcade/internal/race"
	"github.com/race/arcade/internal/vehicle"
)

type botConfig struct {
	URL       string
	Races     int // stop after this many races, 0 runs forever
	Shop      bool
	LogLevel  string
	LogFormat string
}

func loadBotConfig(v *viper.Viper) botConfig {
	v.SetDefault("url", "ws://localhost:3000/ws")
	v.SetDefault("races", 0)
	v.SetDefault("shop", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetEnvPrefix("racebot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return botConfig{
		URL:       v.GetString("url"),
		Races:     v.GetInt("races"),
		Shop:      v.GetBool("shop"),
		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
	}
}

func main() {
	cfg := loadBotConfig(viper.New())
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("racebot")
	}
}

// wsSender serializes writes; gorilla connections allow one writer at a time.
type wsSender struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (s *wsSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

func run(ctx context.Context, cfg botConfig, logger zerolog.Logger) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", cfg.URL)
	}
	defer ws.Close()
	ws.SetReadLimit(1 << 20)

	racer, err := client.NewRacer(client.Config{Logger: logger}, &wsSender{ws: ws})
	if err != nil {
		return err
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				readErr <- errors.Wrap(err, "read")
				return
			}
			if err := racer.HandleFrame(data); err != nil {
				logger.Debug().Err(err).Msg("bad frame")
			}
		}
	}()

	b := &bot{cfg: cfg, racer: racer, pilot: client.DefaultAutopilot(), logger: logger}
	ticker := time.NewTicker(time.Second / config.SimTickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return ctx.Err()
		case err := <-readErr:
			return err
		case now := <-ticker.C:
			done, err := b.step(now)
			if err != nil {
				return err
			}
			if done {
				logger.Info().Int("races", b.races).Int("money", racer.Wallet().Money).Msg("done")
				return nil
			}
		}
	}
}

type bot struct {
	cfg    botConfig
	racer  *client.Racer
	pilot  *client.Autopilot
	logger zerolog.Logger

	lastJoin time.Time
	lastShop time.Time
	result   *network.RaceOver
	races    int
}

func (b *bot) step(now time.Time) (bool, error) {
	r := b.racer
	if r.ID() == "" {
		return false, nil
	}

	if r.Status() == race.Idle && now.Sub(b.lastJoin) > 2*time.Second {
		b.lastJoin = now
		if err := r.JoinRace(); err != nil {
			return false, err
		}
	}
	if b.cfg.Shop && now.Sub(b.lastShop) > 5*time.Second {
		b.lastShop = now
		if err := b.shop(); err != nil {
			return false, err
		}
	}

	phase, _, _ := r.Progress()
	in := vehicle.Input{}
	if phase != progress.Finished {
		if b.pilot.Stuck() {
			r.Respawn()
			b.pilot.Unstick()
		}
		in = b.pilot.Drive(r.Vehicle(), r.Target(), config.SimTickDT)
	}
	if err := r.Tick(now, config.SimTickDT, in); err != nil {
		return false, err
	}

	if res := r.Result(); res != nil && res != b.result {
		b.result = res
		b.races++
		b.logger.Info().Str("winner", res.Winner).Int("races", b.races).Msg("race result")
	}
	return b.cfg.Races > 0 && b.races >= b.cfg.Races, nil
}

// shop buys the cheapest car the bot can afford and does not own yet.
func (b *bot) shop() error {
	wallet := b.racer.Wallet()
	owned := make(map[int]bool, len(wallet.Owned))
	for _, id := range wallet.Owned {
		owned[id] = true
	}

	best := -1
	bestPrice := 0
	for _, v := range b.racer.Catalog() {
		if owned[v.ID] || v.Price > wallet.Money {
			continue
		}
		if best < 0 || v.Price < bestPrice {
			best, bestPrice = v.ID, v.Price
		}
	}
	if best < 0 {
		return nil
	}
	b.logger.Info().Int("item", best).Int("price", bestPrice).Msg("buying car")
	return b.racer.Buy(best)
}
