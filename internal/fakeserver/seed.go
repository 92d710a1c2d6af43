package fakeserver

import (
	"fmt"
	"math/rand"
	"strings"
)

var (
	firstNames = []string{"Ana", "Bruno", "Carla", "Diego", "Elisa", "Fabio", "Gabi", "Heitor", "Iris", "Joao", "Katia", "Lucas"}
	lastNames  = []string{"Silva", "Souza", "Costa", "Lima", "Rocha", "Alves", "Pereira", "Gomes"}
	stacks     = []string{"Go", "Node.js", "React", "React Native", "Rust", "Elixir", "Python", "Kotlin"}
	bios       = []string{
		"Building APIs with %s.",
		"%s in the morning, coffee all day.",
		"Looking for a pair to ship %s side projects with.",
		"Open source %s contributor.",
	}
)

// SeedConfig controls Seed. The same Seed value yields the same accounts.
type SeedConfig struct {
	Count int
	Seed  int64
	// Accounts are registered before the random ones, in order.
	Accounts []Account
}

// Seed registers cfg.Accounts followed by Count generated devs and returns
// them all in registration order.
func (s *Store) Seed(cfg SeedConfig) []Dev {
	r := rand.New(rand.NewSource(cfg.Seed))

	out := make([]Dev, 0, len(cfg.Accounts)+cfg.Count)
	for _, a := range cfg.Accounts {
		out = append(out, s.Register(a))
	}
	for i := 0; i < cfg.Count; i++ {
		out = append(out, s.Register(randomAccount(r, i)))
	}
	return out
}

func randomAccount(r *rand.Rand, i int) Account {
	first := firstNames[r.Intn(len(firstNames))]
	last := lastNames[r.Intn(len(lastNames))]
	stack := stacks[r.Intn(len(stacks))]
	bio := fmt.Sprintf(bios[r.Intn(len(bios))], stack)
	username := fmt.Sprintf("%s%s%d", strings.ToLower(first), strings.ToLower(last[:1]), i)

	return Account{
		Username: username,
		Name:     first + " " + last,
		Bio:      bio,
		Avatar:   fmt.Sprintf("https://avatars.example.com/u/%d?v=4", 1000+i),
	}
}
