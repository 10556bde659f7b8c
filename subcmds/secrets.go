// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bvk/shiftbot/telegram"
)

type Secrets struct {
	Telegram *telegram.Secrets `json:"telegram"`
}

func SecretsFromFile(fpath string) (*Secrets, error) {
	data, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}
	s := new(Secrets)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (v *Secrets) Check() error {
	if v.Telegram == nil {
		return fmt.Errorf("telegram section is required: %w", os.ErrInvalid)
	}
	return v.Telegram.Check()
}

func (v *Secrets) WriteFile(fpath string) error {
	js, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fpath, js, os.FileMode(0600))
}
