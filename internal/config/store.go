package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// State — изменяемое в рантайме состояние бота (меняется командами в чате).
type State struct {
	Prompt string  `json:"prompt"`
	Gain   float64 `json:"gain"`
}

// Store хранит State в JSON-файле; любое изменение сразу сохраняется.
type Store struct {
	mu   sync.Mutex
	path string
	data State
	def  State
}

// OpenStore читает файл состояния; если его нет — создаёт из def.
func OpenStore(path string, def State) (*Store, error) {
	st := &Store{path: path, data: def, def: def}
	if err := st.load(); err != nil {
		return nil, err
	}
	return st, nil
}

func (st *Store) load() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	_ = os.MkdirAll(filepath.Dir(st.path), 0755)
	b, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return st.saveLocked() // создаём с дефолтами
		}
		return err
	}
	if err := json.Unmarshal(b, &st.data); err != nil {
		return fmt.Errorf("state %s: %w", st.path, err)
	}
	// пустые поля добиваем дефолтами
	if st.data.Prompt == "" {
		st.data.Prompt = st.def.Prompt
	}
	if st.data.Gain <= 0 {
		st.data.Gain = st.def.Gain
	}
	return nil
}

func (st *Store) Path() string { return st.path }

func (st *Store) Prompt() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.data.Prompt
}

// SetPrompt меняет промпт; пустая строка возвращает промпт по умолчанию.
func (st *Store) SetPrompt(p string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if p == "" {
		p = st.def.Prompt
	}
	st.data.Prompt = p
	return st.saveLocked()
}

func (st *Store) Gain() float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.data.Gain
}

func (st *Store) SetGain(g float64) error {
	if g <= 0 || g > 10 {
		return fmt.Errorf("gain вне диапазона (0, 10]: %v", g)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.data.Gain = g
	return st.saveLocked()
}

func (st *Store) Snapshot() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.data
}

func (st *Store) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.saveLocked()
}

func (st *Store) saveLocked() error {
	b, err := json.MarshalIndent(&st.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(st.path, b, 0644)
}
