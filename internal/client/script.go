package client

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Script drives a client without a human: it fires Attacks in order on each
// START_TURN and answers incoming attacks with Reports in order.
//
//	player: alice
//	attacks: [A1, B2, C3]
//	reports: [miss, hit, defeat]
//
// Once Reports is exhausted every further attack is answered with miss.
type Script struct {
	Player  string   `yaml:"player"`
	Attacks []string `yaml:"attacks"`
	Reports []string `yaml:"reports"`
}

// LoadScript reads and validates a YAML script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every attack is non-empty and every report is miss, hit or defeat.
func (s *Script) Validate() error {
	if len(s.Attacks) == 0 {
		return fmt.Errorf("script: at least one attack is required")
	}
	for i, a := range s.Attacks {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("script: attack %d is empty", i)
		}
	}
	for i, r := range s.Reports {
		switch strings.ToLower(r) {
		case "miss", "hit", "defeat":
		default:
			return fmt.Errorf("script: report %d: unknown result %q", i, r)
		}
	}
	return nil
}

// Bind registers the script's handlers on c. Errors from the client while
// playing are logged.
func (s *Script) Bind(c *Client, logger *zap.Logger) error {
	var mu sync.Mutex
	attacks := append([]string(nil), s.Attacks...)
	reports := append([]string(nil), s.Reports...)

	onStart := func(context.Context, string) {
		mu.Lock()
		if len(attacks) == 0 {
			mu.Unlock()
			logger.Warn("script out of attacks")
			return
		}
		vector := attacks[0]
		attacks = attacks[1:]
		mu.Unlock()
		if err := c.Attack(vector); err != nil {
			logger.Error("scripted attack", zap.String("vector", vector), zap.Error(err))
		}
	}
	onAttack := func(_ context.Context, vector string) {
		mu.Lock()
		answer := "miss"
		if len(reports) > 0 {
			answer = strings.ToLower(reports[0])
			reports = reports[1:]
		}
		mu.Unlock()
		var err error
		switch answer {
		case "hit":
			err = c.Hit()
		case "defeat":
			err = c.Defeat()
		default:
			err = c.Miss()
		}
		if err != nil {
			logger.Error("scripted report", zap.String("vector", vector), zap.String("report", answer), zap.Error(err))
		}
	}

	if err := c.On(EventStartTurn, onStart); err != nil {
		return err
	}
	return c.On(EventAttack, onAttack)
}
