package event

import "fmt"

// Kind identifies one closed set of event shapes. A handler registered for
// kind K is only ever invoked with a value of kind K.
type Kind int32

const (
	KindUnknown Kind = iota
	KindCountdown
	KindRoundStart
	KindDealCard
	KindGameResult
	KindBetResponse
	KindRoundStateUpdate
	KindBalanceChanged
	KindStatisticsUpdated
	KindBetSettled
	KindConnectionStateChanged
	KindRoundStateChanged
	KindGameStateChanged
)

var kindNames = map[Kind]string{
	KindUnknown:                "Unknown",
	KindCountdown:              "Countdown",
	KindRoundStart:             "RoundStart",
	KindDealCard:               "DealCard",
	KindGameResult:             "GameResult",
	KindBetResponse:            "BetResponse",
	KindRoundStateUpdate:       "RoundStateUpdate",
	KindBalanceChanged:         "BalanceChanged",
	KindStatisticsUpdated:      "StatisticsUpdated",
	KindBetSettled:             "BetSettled",
	KindConnectionStateChanged: "ConnectionStateChanged",
	KindRoundStateChanged:      "RoundStateChanged",
	KindGameStateChanged:       "GameStateChanged",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Event is implemented by every value the bus routes.
type Event interface {
	Kind() Kind
}

/*
	服务端推送事件（wire）
*/

// Card is the wire shape of a dealt card.
type Card struct {
	Suit string `json:"suit"`
	Rank string `json:"rank"`
}

// Countdown ticks down the betting window.
type Countdown struct {
	Seconds int32  `json:"seconds"`
	Stage   string `json:"stage"`
}

func (*Countdown) Kind() Kind { return KindCountdown }

// RoundStart announces a fresh round.
type RoundStart struct {
	RoundID     string `json:"round_id"`
	RoundNumber int64  `json:"round_number"`
	TableID     string `json:"table_id"`
	DealerID    string `json:"dealer_id"`
}

func (*RoundStart) Kind() Kind { return KindRoundStart }

// DealCard appends one card to a hand. Target is "player" or "banker".
type DealCard struct {
	Target string `json:"target"`
	Card   Card   `json:"card"`
}

func (*DealCard) Kind() Kind { return KindDealCard }

// GameResult carries the outcome of a finished round.
type GameResult struct {
	MainResult    string `json:"main_result"` // player/banker/tie
	HasPlayerPair bool   `json:"player_pair"`
	HasBankerPair bool   `json:"banker_pair"`
	IsLucky6      bool   `json:"lucky6"`
	IsDragon7     bool   `json:"dragon7"`
	IsPanda8      bool   `json:"panda8"`
	PlayerCards   []Card `json:"player_cards"`
	BankerCards   []Card `json:"banker_cards"`
}

func (*GameResult) Kind() Kind { return KindGameResult }

// BetResponse is the server's accept/reject for a submitted bet.
type BetResponse struct {
	BetID   string  `json:"bet_id"`
	BetType string  `json:"bet_type"`
	Amount  float64 `json:"amount"`
	Code    int32   `json:"code"`
	Message string  `json:"message"`
}

func (*BetResponse) Kind() Kind { return KindBetResponse }

// RoundStateUpdate is a server-driven round state push.
type RoundStateUpdate struct {
	State string `json:"state"` // idle/betting/dealing/settling
}

func (*RoundStateUpdate) Kind() Kind { return KindRoundStateUpdate }

/*
	账本派生事件
*/

type BalanceChanged struct {
	Old float64
	New float64
}

func (*BalanceChanged) Kind() Kind { return KindBalanceChanged }

type StatisticsUpdated struct {
	TotalRounds int64
	PlayerWins  int64
	BankerWins  int64
	Ties        int64
	PlayerPairs int64
	BankerPairs int64
}

func (*StatisticsUpdated) Kind() Kind { return KindStatisticsUpdated }

type BetSettled struct {
	SettlementID string
	BetID        string
	BetType      string
	BetAmount    float64
	IsWin        bool
	Payout       float64
	WinAmount    float64
}

func (*BetSettled) Kind() Kind { return KindBetSettled }

/*
	会话派生事件
*/

type ConnectionStateChanged struct {
	Old string
	New string
}

func (*ConnectionStateChanged) Kind() Kind { return KindConnectionStateChanged }

type RoundStateChanged struct {
	Old string
	New string
}

func (*RoundStateChanged) Kind() Kind { return KindRoundStateChanged }

type GameStateChanged struct {
	Old string
	New string
}

func (*GameStateChanged) Kind() Kind { return KindGameStateChanged }
