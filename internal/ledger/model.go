package ledger

import (
	"fmt"
	"strings"
)

/*
	BetType 下注区域
*/

type BetType int32

const (
	BetPlayer BetType = iota
	BetBanker
	BetTie
	BetPlayerPair
	BetBankerPair
	BetLucky6
	BetDragon7
	BetPanda8
)

// AllBetTypes is the settlement iteration order.
var AllBetTypes = []BetType{
	BetPlayer, BetBanker, BetTie, BetPlayerPair,
	BetBankerPair, BetLucky6, BetDragon7, BetPanda8,
}

var betTypeNames = map[BetType]string{
	BetPlayer:     "player",
	BetBanker:     "banker",
	BetTie:        "tie",
	BetPlayerPair: "player_pair",
	BetBankerPair: "banker_pair",
	BetLucky6:     "lucky6",
	BetDragon7:    "dragon7",
	BetPanda8:     "panda8",
}

func (t BetType) String() string {
	if name, ok := betTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("BetType(%d)", t)
}

func ParseBetType(s string) (BetType, bool) {
	s = strings.ToLower(s)
	for t, name := range betTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

type BetStatus int32

const (
	BetStatusOpen BetStatus = iota
	BetStatusSettled
)

func (s BetStatus) String() string {
	switch s {
	case BetStatusOpen:
		return "Open"
	case BetStatusSettled:
		return "Settled"
	default:
		return fmt.Sprintf("BetStatus(%d)", s)
	}
}

// BetInfo is one open or settled wager. IsWin/WinAmount are meaningful only
// once Status is Settled.
type BetInfo struct {
	BetID     string
	Type      BetType
	Amount    float64
	Status    BetStatus
	IsWin     bool
	WinAmount float64
}

// RoundInfo identifies the round in progress; superseded wholesale by the
// next round start.
type RoundInfo struct {
	RoundID     string
	RoundNumber int64
	TableID     string
	DealerID    string
}

/*
	牌与手牌
*/

type Card struct {
	Suit string
	Rank string
}

// Point returns the baccarat value of the card (10/J/Q/K count zero).
func (c Card) Point() int {
	switch c.Rank {
	case "A":
		return 1
	case "2", "3", "4", "5", "6", "7", "8", "9":
		return int(c.Rank[0] - '0')
	default: // 10, J, Q, K
		return 0
	}
}

// HandInfo is the ordered cards of one side plus the derived mod-10 total.
type HandInfo struct {
	Cards []Card
}

func (h HandInfo) Points() int {
	sum := 0
	for _, c := range h.Cards {
		sum += c.Point()
	}
	return sum % 10
}

/*
	结果与结算
*/

type MainResult int32

const (
	ResultPlayer MainResult = iota
	ResultBanker
	ResultTie
)

var mainResultNames = map[MainResult]string{
	ResultPlayer: "player",
	ResultBanker: "banker",
	ResultTie:    "tie",
}

func (r MainResult) String() string {
	if name, ok := mainResultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("MainResult(%d)", r)
}

func ParseMainResult(s string) (MainResult, bool) {
	s = strings.ToLower(s)
	for r, name := range mainResultNames {
		if name == s {
			return r, true
		}
	}
	return 0, false
}

// RoundResult is immutable once constructed; appended to round history.
type RoundResult struct {
	MainResult    MainResult
	HasPlayerPair bool
	HasBankerPair bool
	IsLucky6      bool
	IsDragon7     bool
	IsPanda8      bool
	PlayerHand    HandInfo
	BankerHand    HandInfo
}

// BetSettlement is computed exactly once per BetInfo per RoundResult.
// Payout excludes the principal; WinAmount = principal + payout (0 if lost).
type BetSettlement struct {
	SettlementID string
	BetID        string
	Type         BetType
	BetAmount    float64
	IsWin        bool
	Payout       float64
	WinAmount    float64
}

// Wins reports whether a bet of type t wins against res. Pure; the same
// (t, res) pair always yields the same answer.
func Wins(t BetType, res RoundResult) bool {
	switch t {
	case BetPlayer:
		return res.MainResult == ResultPlayer
	case BetBanker:
		return res.MainResult == ResultBanker
	case BetTie:
		return res.MainResult == ResultTie
	case BetPlayerPair:
		return res.HasPlayerPair
	case BetBankerPair:
		return res.HasBankerPair
	case BetLucky6:
		return res.IsLucky6
	case BetDragon7:
		return res.IsDragon7
	case BetPanda8:
		return res.IsPanda8
	default:
		return false
	}
}

/*
	统计与状态
*/

// GameStatistics counters are monotonic until an explicit reset.
type GameStatistics struct {
	TotalRounds int64
	PlayerWins  int64
	BankerWins  int64
	Ties        int64
	PlayerPairs int64
	BankerPairs int64
}

type GameState int32

const (
	GameInitializing GameState = iota
	GameRunning
	GameStopped
)

func (s GameState) String() string {
	switch s {
	case GameInitializing:
		return "Initializing"
	case GameRunning:
		return "Running"
	case GameStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("GameState(%d)", s)
	}
}

type RoundState int32

const (
	RoundIdle RoundState = iota
	RoundBetting
	RoundDealing
	RoundSettling
)

var roundStateNames = map[RoundState]string{
	RoundIdle:     "Idle",
	RoundBetting:  "Betting",
	RoundDealing:  "Dealing",
	RoundSettling: "Settling",
}

func (s RoundState) String() string {
	if name, ok := roundStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RoundState(%d)", s)
}

func ParseRoundState(s string) (RoundState, bool) {
	s = strings.ToLower(s)
	for r, name := range roundStateNames {
		if strings.ToLower(name) == s {
			return r, true
		}
	}
	return 0, false
}
