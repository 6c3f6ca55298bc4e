package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mbergh0930/create3x/internal/catalog"
	"github.com/mbergh0930/create3x/internal/game"
	"github.com/mbergh0930/create3x/internal/models"
	"github.com/mbergh0930/create3x/internal/repository"
)

type simulateOptions struct {
	mode    string
	turns   int
	artist  string
	focus   string
	seed    uint64
	endAt   int
	catalog string
}

type simulation struct {
	Session *models.Session   `json:"session"`
	Turns   []models.TurnView `json:"turns"`
}

func newSimulateCmd() *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play a session in memory and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadCatalog(opts.catalog)
			if err != nil {
				return err
			}
			return simulate(cmd.Context(), cmd.OutOrStdout(), c, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.mode, "mode", string(models.ModePlay), "session mode")
	f.IntVar(&opts.turns, "turns", 0, "requested turns (0 picks a random default)")
	f.StringVar(&opts.artist, "artist", "", "artist id for master-artist mode")
	f.StringVar(&opts.focus, "focus", "", "artist focus: all, colors-only, techniques-only, mediums-only")
	f.Uint64Var(&opts.seed, "seed", 0, "random seed (0 is nondeterministic)")
	f.IntVar(&opts.endAt, "end-after", 0, "end the session early after this many turns")
	f.StringVar(&opts.catalog, "catalog", "", "catalog YAML file (defaults to the built-in catalog)")
	return cmd
}

func simulate(ctx context.Context, out io.Writer, c *catalog.Catalog, opts simulateOptions) error {
	mode, err := game.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	focus, err := game.ParseFocus(opts.focus)
	if err != nil {
		return err
	}

	rng := game.NewRand()
	if opts.seed != 0 {
		rng = game.NewSeededRand(opts.seed, opts.seed)
	}
	m := game.NewMachine(repository.NewMemorySessionStore(), c, rng, game.DefaultLimits())

	var requested *int
	if opts.turns != 0 {
		requested = &opts.turns
	}

	s, err := m.Create(ctx, "simulator", mode, models.SessionConfig{ArtistID: opts.artist, ArtistFocus: focus}, requested)
	if err != nil {
		return err
	}

	result := simulation{Turns: make([]models.TurnView, 0, s.PlannedTurns)}
	for s.CompletedTurns < s.PlannedTurns {
		if opts.endAt > 0 && s.CompletedTurns >= opts.endAt {
			break
		}
		turn, err := m.RequestTurn(s)
		if err != nil {
			return err
		}
		s, _, err = m.CompleteTurn(ctx, s, turn, fmt.Sprintf("turn %d", turn.TurnNumber))
		if err != nil {
			return err
		}
		result.Turns = append(result.Turns, m.Generator().View(s, turn))
	}

	if s.CompletedTurns < s.PlannedTurns {
		s, err = m.EndEarly(ctx, s, "ended early")
	} else {
		s, err = m.Finalize(ctx, s, "finished")
	}
	if err != nil {
		return err
	}
	result.Session = s

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
