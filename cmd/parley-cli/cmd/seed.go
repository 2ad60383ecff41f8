package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nfrund/parley/internal/chat"
	"github.com/nfrund/parley/internal/config"
	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/storage"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// seedFs is the filesystem fixtures are read from; tests swap in a memory fs.
var seedFs = afero.NewOsFs()

// fixture is the on-disk seed format.
type fixture struct {
	Users []string `json:"users"`
	Rooms []struct {
		Name         string   `json:"name"`
		Kind         string   `json:"kind"`
		Participants []string `json:"participants"`
	} `json:"rooms"`
	Messages []struct {
		Room   string `json:"room"`
		Sender string `json:"sender"`
		Body   string `json:"body"`
	} `json:"messages"`
}

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.json>",
	Short: "Load users, rooms and messages from a fixture file into the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fix, err := loadFixture(seedFs, args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		cfg := config.New()
		db, err := storage.NewDB(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close(ctx)

		if err := applySeed(ctx, storage.NewSurrealStore(db), fix); err != nil {
			return err
		}

		fmt.Printf("Seeded %d users, %d rooms, %d messages\n",
			len(fix.Users), len(fix.Rooms), len(fix.Messages))
		return nil
	},
}

func loadFixture(fsys afero.Fs, path string) (*fixture, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %q: %w", path, err)
	}
	var fix fixture
	if err := json.Unmarshal(data, &fix); err != nil {
		return nil, fmt.Errorf("parse fixture %q: %w", path, err)
	}
	return &fix, nil
}

// applySeed writes the fixture through the gateway. Repeating a seed run is
// safe: users and rooms are get-or-create, only messages accumulate.
func applySeed(ctx context.Context, store domain.ChatGateway, fix *fixture) error {
	for _, username := range fix.Users {
		if _, err := store.GetOrCreateUser(ctx, username); err != nil {
			return fmt.Errorf("seed user %q: %w", username, err)
		}
	}

	for _, room := range fix.Rooms {
		name := chat.SanitizeRoomName(room.Name)
		kind := domain.RoomGroup
		if room.Kind == "direct" {
			kind = domain.RoomDirect
			if len(room.Participants) == 2 {
				name = chat.DirectRoomName(room.Participants[0], room.Participants[1])
			}
		}
		if _, err := store.GetOrCreateRoom(ctx, name, kind); err != nil {
			return fmt.Errorf("seed room %q: %w", name, err)
		}
		for _, username := range room.Participants {
			if err := store.AddParticipant(ctx, name, username); err != nil {
				return fmt.Errorf("seed participant %q in %q: %w", username, name, err)
			}
		}
	}

	for _, msg := range fix.Messages {
		if _, err := store.CreateMessage(ctx, chat.SanitizeRoomName(msg.Room), msg.Sender, msg.Body); err != nil {
			return fmt.Errorf("seed message in %q: %w", msg.Room, err)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
