package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	// Fee bounds in basis points. The default applies until the admin changes
	// it; the cap is part of the contract surface.
	DefaultFeeBps uint32 = 250
	MaxFeeBps     uint32 = 500
)

type State struct {
	Height int64 `json:"height"`

	// Game ids are assigned sequentially starting at 0 and never reused.
	NextGameID uint64           `json:"nextGameId"`
	Games      map[uint64]*Game `json:"games"`

	Accounts    map[string]uint64 `json:"accounts"`
	AccountKeys map[string][]byte `json:"accountKeys,omitempty"` // addr -> ed25519 pubkey (32 bytes)
	NonceMax    map[string]uint64 `json:"nonceMax,omitempty"`    // signer -> last accepted tx.nonce (u64), for replay protection

	Stats map[string]*PlayerStats `json:"stats"`

	// TotalStaked is a running sum of every stake ever escrowed, not a live
	// balance. TotalGamesPlayed counts terminal resolutions.
	TotalStaked      uint64 `json:"totalStaked"`
	TotalGamesPlayed uint64 `json:"totalGamesPlayed"`

	Config Config `json:"config"`
}

func NewState() *State {
	return &State{
		Height:      0,
		NextGameID:  0,
		Games:       map[uint64]*Game{},
		Accounts:    map[string]uint64{},
		AccountKeys: map[string][]byte{},
		NonceMax:    map[string]uint64{},
		Stats:       map[string]*PlayerStats{},
		Config:      Config{FeeBps: DefaultFeeBps},
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

func (s *State) normalize() {
	if s.Games == nil {
		s.Games = map[uint64]*Game{}
	}
	if s.Accounts == nil {
		s.Accounts = map[string]uint64{}
	}
	if s.AccountKeys == nil {
		s.AccountKeys = map[string][]byte{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[string]uint64{}
	}
	if s.Stats == nil {
		s.Stats = map[string]*PlayerStats{}
	}
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash: marshal with stable key ordering by serializing
	// a normalized view.
	//
	// Note: encoding/json does NOT guarantee map key order, so we manually
	// normalize maps into slices.
	type accountKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type accountKeyKV struct {
		Addr   string `json:"addr"`
		PubKey []byte `json:"pubKey"`
	}
	type nonceKV struct {
		Signer string `json:"signer"`
		Nonce  uint64 `json:"nonce"`
	}
	type gameKV struct {
		ID   uint64 `json:"id"`
		Game *Game  `json:"game"`
	}
	type statsKV struct {
		Addr  string       `json:"addr"`
		Stats *PlayerStats `json:"stats"`
	}

	accounts := make([]accountKV, 0, len(s.Accounts))
	for k, v := range s.Accounts {
		accounts = append(accounts, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Addr < accounts[j].Addr })

	accountKeys := make([]accountKeyKV, 0, len(s.AccountKeys))
	for k, v := range s.AccountKeys {
		accountKeys = append(accountKeys, accountKeyKV{Addr: k, PubKey: v})
	}
	sort.Slice(accountKeys, func(i, j int) bool { return accountKeys[i].Addr < accountKeys[j].Addr })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Signer < nonces[j].Signer })

	games := make([]gameKV, 0, len(s.Games))
	for id, g := range s.Games {
		games = append(games, gameKV{ID: id, Game: g})
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })

	stats := make([]statsKV, 0, len(s.Stats))
	for addr, ps := range s.Stats {
		stats = append(stats, statsKV{Addr: addr, Stats: ps})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Addr < stats[j].Addr })

	normalized := struct {
		Height           int64          `json:"height"`
		NextGameID       uint64         `json:"nextGameId"`
		Games            []gameKV       `json:"games"`
		Accounts         []accountKV    `json:"accounts"`
		AccountKeys      []accountKeyKV `json:"accountKeys,omitempty"`
		NonceMax         []nonceKV      `json:"nonceMax,omitempty"`
		Stats            []statsKV      `json:"stats"`
		TotalStaked      uint64         `json:"totalStaked"`
		TotalGamesPlayed uint64         `json:"totalGamesPlayed"`
		Config           Config         `json:"config"`
	}{
		Height:           s.Height,
		NextGameID:       s.NextGameID,
		Games:            games,
		Accounts:         accounts,
		AccountKeys:      accountKeys,
		NonceMax:         nonces,
		Stats:            stats,
		TotalStaked:      s.TotalStaked,
		TotalGamesPlayed: s.TotalGamesPlayed,
		Config:           s.Config,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----

func (s *State) Balance(addr string) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return fmt.Errorf("insufficient funds: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}

// ---- Duel ----

type GameStatus string

const (
	StatusWaitingForOpponent GameStatus = "waitingForOpponent"
	StatusActive             GameStatus = "active"
	StatusSettled            GameStatus = "settled"
	StatusCancelled          GameStatus = "cancelled"
	StatusExpired            GameStatus = "expired"
)

// Terminal reports whether no further transition out of the status exists.
func (s GameStatus) Terminal() bool {
	switch s {
	case StatusSettled, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

type Game struct {
	ID      uint64 `json:"id"`
	Player1 string `json:"player1"`
	Player2 string `json:"player2,omitempty"` // unset until joined

	// Stake is fixed at creation and escrowed once per player; the pot is
	// always exactly twice the stake.
	Stake uint64 `json:"stake"`

	CreatedAt int64 `json:"createdAt"`           // unix seconds (block time)
	StartedAt int64 `json:"startedAt,omitempty"` // set on transition to active

	Status GameStatus `json:"status"`

	// Result slots are write-once while the game is active. Zero is not a
	// valid reaction time (a minimum-time floor is enforced), so submission is
	// tracked by explicit flags rather than a sentinel value.
	P1ReactionMs uint64 `json:"p1ReactionMs,omitempty"`
	P2ReactionMs uint64 `json:"p2ReactionMs,omitempty"`
	P1Submitted  bool   `json:"p1Submitted,omitempty"`
	P2Submitted  bool   `json:"p2Submitted,omitempty"`

	Winner string `json:"winner,omitempty"` // unset until settlement or default win
}

// IsPlayer reports whether addr is one of the two participants.
func (g *Game) IsPlayer(addr string) bool {
	return addr != "" && (addr == g.Player1 || addr == g.Player2)
}

// ---- Stats ----

// PlayerStats are derived aggregates, updated only by settlement and timeout
// resolution. BestReactionMs is the minimum winning time; 0 means no win yet.
type PlayerStats struct {
	Wins           uint64 `json:"wins"`
	GamesPlayed    uint64 `json:"gamesPlayed"`
	BestReactionMs uint64 `json:"bestReactionMs,omitempty"`
}

// PlayerStatsFor returns the stats record for addr, creating it if absent.
func (s *State) PlayerStatsFor(addr string) *PlayerStats {
	ps := s.Stats[addr]
	if ps == nil {
		ps = &PlayerStats{}
		s.Stats[addr] = ps
	}
	return ps
}

// ---- Config ----

// Config is the process-wide protocol configuration. Mutation goes through
// the admin tx handlers only; the admin identity is fixed at genesis.
type Config struct {
	Admin        string   `json:"admin,omitempty"`
	FeeBps       uint32   `json:"feeBps"`
	FeeRecipient string   `json:"feeRecipient,omitempty"`
	StakeTiers   []uint64 `json:"stakeTiers,omitempty"` // sorted ascending
}

// HasTier reports whether amount is a permitted stake tier.
func (c *Config) HasTier(amount uint64) bool {
	i := sort.Search(len(c.StakeTiers), func(i int) bool { return c.StakeTiers[i] >= amount })
	return i < len(c.StakeTiers) && c.StakeTiers[i] == amount
}

// AddTier inserts amount keeping the tier list sorted. Duplicates are
// rejected so the list stays a set.
func (c *Config) AddTier(amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("stake tier must be > 0")
	}
	if c.HasTier(amount) {
		return fmt.Errorf("stake tier %d already exists", amount)
	}
	i := sort.Search(len(c.StakeTiers), func(i int) bool { return c.StakeTiers[i] >= amount })
	c.StakeTiers = append(c.StakeTiers, 0)
	copy(c.StakeTiers[i+1:], c.StakeTiers[i:])
	c.StakeTiers[i] = amount
	return nil
}

// RemoveTier removes amount from the tier list. Games created with the tier
// are unaffected; their stake was captured at creation.
func (c *Config) RemoveTier(amount uint64) error {
	i := sort.Search(len(c.StakeTiers), func(i int) bool { return c.StakeTiers[i] >= amount })
	if i >= len(c.StakeTiers) || c.StakeTiers[i] != amount {
		return fmt.Errorf("stake tier %d not found", amount)
	}
	c.StakeTiers = append(c.StakeTiers[:i], c.StakeTiers[i+1:]...)
	return nil
}
