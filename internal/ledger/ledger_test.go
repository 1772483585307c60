package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yola1107/baccarat/internal/event"
)

func newTestLedger(t *testing.T, balance float64) (*Ledger, *event.Bus) {
	t.Helper()
	bus := event.New(nil, nil)
	l := New(Config{InitialBalance: balance, HistoryCap: 100}, bus, DefaultOddsTable())
	l.UpdateRoundState(RoundBetting)
	return l, bus
}

func TestNewPanicsOnMissingCollaborators(t *testing.T) {
	bus := event.New(nil, nil)
	require.Panics(t, func() { New(Config{}, nil, DefaultOddsTable()) })
	require.Panics(t, func() { New(Config{}, bus, nil) })
}

func TestAddBetBalanceGuard(t *testing.T) {
	l, _ := newTestLedger(t, 100)

	assert.False(t, l.AddBet(BetInfo{Type: BetPlayer, Amount: 101}))
	assert.False(t, l.AddBet(BetInfo{Type: BetPlayer, Amount: 0}))
	assert.False(t, l.AddBet(BetInfo{Type: BetPlayer, Amount: -5}))
	assert.True(t, l.AddBet(BetInfo{Type: BetPlayer, Amount: 100}))

	// AddBet alone never mutates the balance
	assert.Equal(t, 100.0, l.Balance())
}

func TestTotalBetAmountTracksOpenBets(t *testing.T) {
	l, _ := newTestLedger(t, 1000)

	require.True(t, l.AddBet(BetInfo{BetID: "b1", Type: BetPlayer, Amount: 100}))
	require.True(t, l.AddBet(BetInfo{BetID: "b2", Type: BetTie, Amount: 25}))
	assert.Equal(t, 125.0, l.TotalBetAmount())

	// replacing the open bet of a type swaps, not stacks
	require.True(t, l.AddBet(BetInfo{BetID: "b3", Type: BetPlayer, Amount: 50}))
	assert.Equal(t, 75.0, l.TotalBetAmount())
	assert.Len(t, l.CurrentBets(), 2)

	require.True(t, l.RemoveBet("b2"))
	assert.Equal(t, 50.0, l.TotalBetAmount())

	assert.False(t, l.RemoveBet("b2"), "second removal is a no-op")
	require.True(t, l.RemoveBetByType(BetPlayer))
	assert.False(t, l.RemoveBetByType(BetPlayer))
	assert.Zero(t, l.TotalBetAmount())
	assert.Empty(t, l.CurrentBets())
}

func TestCanPlaceBet(t *testing.T) {
	l, _ := newTestLedger(t, 100)

	assert.True(t, l.CanPlaceBet(BetPlayer, 100))
	assert.False(t, l.CanPlaceBet(BetPlayer, 101), "exceeds balance")
	assert.False(t, l.CanPlaceBet(BetPlayer, 0))

	require.True(t, l.AddBet(BetInfo{Type: BetPlayer, Amount: 10}))
	assert.False(t, l.CanPlaceBet(BetPlayer, 10), "one open bet per type")
	assert.True(t, l.CanPlaceBet(BetBanker, 10))

	l.UpdateRoundState(RoundDealing)
	assert.False(t, l.CanPlaceBet(BetBanker, 10), "betting window closed")
}

func TestDeductBalance(t *testing.T) {
	l, bus := newTestLedger(t, 100)

	var changes []*event.BalanceChanged
	bus.Subscribe(event.KindBalanceChanged, func(ev event.Event) {
		changes = append(changes, ev.(*event.BalanceChanged))
	})

	assert.False(t, l.DeductBalance(100.5))
	assert.Equal(t, 100.0, l.Balance(), "failed deduct leaves balance unchanged")
	assert.Empty(t, changes)

	assert.True(t, l.DeductBalance(100))
	assert.Zero(t, l.Balance())
	require.Len(t, changes, 1)
	assert.Equal(t, 100.0, changes[0].Old)
	assert.Zero(t, changes[0].New)

	assert.False(t, l.DeductBalance(1), "balance never goes negative")

	assert.True(t, l.AddBalance(42))
	assert.False(t, l.AddBalance(-1))
	assert.Equal(t, 42.0, l.Balance())

	assert.True(t, l.UpdatePlayerBalance(500))
	assert.False(t, l.UpdatePlayerBalance(-500))
	assert.Equal(t, 500.0, l.Balance())
}

func TestRoundResultSettlesEveryOpenBet(t *testing.T) {
	l, bus := newTestLedger(t, 1000)

	var settled []*event.BetSettled
	bus.Subscribe(event.KindBetSettled, func(ev event.Event) {
		settled = append(settled, ev.(*event.BetSettled))
	})

	require.True(t, l.AddBet(BetInfo{BetID: "b1", Type: BetPlayer, Amount: 100}))
	require.True(t, l.AddBet(BetInfo{BetID: "b2", Type: BetBankerPair, Amount: 10}))

	l.OnRoundResult(RoundResult{MainResult: ResultPlayer, HasBankerPair: true})

	assert.Empty(t, l.CurrentBets(), "open-bet set empty after settlement")
	assert.Zero(t, l.TotalBetAmount())

	history := l.BetHistory(0)
	require.Len(t, history, 2)
	for _, bet := range history {
		assert.Equal(t, BetStatusSettled, bet.Status)
	}

	require.Len(t, settled, 2)
	ids := map[string]bool{}
	for _, s := range settled {
		require.False(t, ids[s.BetID], "each bet settled exactly once")
		ids[s.BetID] = true
		assert.True(t, s.IsWin)
		assert.NotEmpty(t, s.SettlementID)
	}
}

func TestEndToEndLosingBet(t *testing.T) {
	l, _ := newTestLedger(t, 1000)

	require.True(t, l.AddBet(BetInfo{Type: BetPlayer, Amount: 100}))
	require.True(t, l.DeductBalance(100)) // caller-side optimistic debit
	require.Equal(t, 900.0, l.Balance())

	l.OnRoundResult(RoundResult{MainResult: ResultBanker})

	assert.Equal(t, 900.0, l.Balance())
	history := l.BetHistory(0)
	require.Len(t, history, 1)
	assert.Equal(t, BetStatusSettled, history[0].Status)
	assert.False(t, history[0].IsWin)
	assert.Zero(t, history[0].WinAmount)

	stats := l.Statistics()
	assert.Equal(t, int64(1), stats.TotalRounds)
	assert.Equal(t, int64(1), stats.BankerWins)
	assert.Zero(t, stats.PlayerWins)
}

func TestEndToEndWinningBankerBet(t *testing.T) {
	l, _ := newTestLedger(t, 1000)

	require.True(t, l.AddBet(BetInfo{Type: BetBanker, Amount: 50}))
	before := l.Balance()

	l.OnRoundResult(RoundResult{MainResult: ResultBanker})

	// banker pays 0.95: payout 47.5, winAmount 97.5
	assert.InDelta(t, before+97.5, l.Balance(), 1e-9)

	settlements := l.Settlements(0)
	require.Len(t, settlements, 1)
	assert.InDelta(t, 47.5, settlements[0].Payout, 1e-9)
	assert.InDelta(t, 97.5, settlements[0].WinAmount, 1e-9)
}

func TestStatisticsCounters(t *testing.T) {
	l, _ := newTestLedger(t, 1000)

	l.OnRoundResult(RoundResult{MainResult: ResultPlayer, HasPlayerPair: true})
	l.OnRoundResult(RoundResult{MainResult: ResultTie, HasPlayerPair: true, HasBankerPair: true})
	l.OnRoundResult(RoundResult{MainResult: ResultBanker})

	stats := l.Statistics()
	assert.Equal(t, int64(3), stats.TotalRounds)
	assert.Equal(t, int64(1), stats.PlayerWins)
	assert.Equal(t, int64(1), stats.BankerWins)
	assert.Equal(t, int64(1), stats.Ties)
	assert.Equal(t, int64(2), stats.PlayerPairs)
	assert.Equal(t, int64(1), stats.BankerPairs)
}

func TestRoundStartClearsRoundData(t *testing.T) {
	l, _ := newTestLedger(t, 1000)

	l.OnDealCard("player", Card{Suit: "spades", Rank: "9"})
	l.OnDealCard("banker", Card{Suit: "hearts", Rank: "K"})
	require.Len(t, l.PlayerHand().Cards, 1)

	l.OnRoundStart(RoundInfo{RoundID: "r2", RoundNumber: 2, TableID: "t1"})

	assert.Empty(t, l.PlayerHand().Cards)
	assert.Empty(t, l.BankerHand().Cards)
	assert.Equal(t, RoundBetting, l.RoundState())

	info, ok := l.CurrentRoundInfo()
	require.True(t, ok)
	assert.Equal(t, "r2", info.RoundID)
	assert.Equal(t, int64(2), info.RoundNumber)
}

func TestHistoryWindows(t *testing.T) {
	l, _ := newTestLedger(t, 10000)

	for i := 0; i < 5; i++ {
		require.True(t, l.AddBet(BetInfo{Type: BetPlayer, Amount: 10}))
		l.OnRoundResult(RoundResult{MainResult: ResultPlayer})
	}

	assert.Len(t, l.BetHistory(0), 5, "count <= 0 returns everything")
	assert.Len(t, l.BetHistory(-1), 5)
	assert.Len(t, l.BetHistory(2), 2)
	assert.Len(t, l.BetHistory(99), 5)
	assert.Len(t, l.RoundHistory(3), 3)

	// defensive copy: mutating the returned slice leaves the ledger intact
	rounds := l.RoundHistory(0)
	rounds[0].MainResult = ResultTie
	assert.Equal(t, ResultPlayer, l.RoundHistory(0)[0].MainResult)
}

func TestResetAllData(t *testing.T) {
	l, _ := newTestLedger(t, 1000)

	require.True(t, l.AddBet(BetInfo{Type: BetPlayer, Amount: 100}))
	require.True(t, l.DeductBalance(100))
	l.OnRoundResult(RoundResult{MainResult: ResultBanker})
	l.UpdateRoundState(RoundDealing)

	l.ResetAllData()

	assert.Equal(t, 1000.0, l.Balance())
	assert.Empty(t, l.CurrentBets())
	assert.Empty(t, l.BetHistory(0))
	assert.Empty(t, l.RoundHistory(0))
	assert.Equal(t, GameStatistics{}, l.Statistics())
	assert.Equal(t, RoundDealing, l.RoundState(), "round state untouched by reset")
}

func TestLedgerDrivenByBusEvents(t *testing.T) {
	bus := event.New(nil, nil)
	l := New(Config{InitialBalance: 1000}, bus, DefaultOddsTable())
	l.Attach()
	defer l.Detach()

	bus.ProcessRawMessage([]byte(`{"type":"round_start","round_id":"r1","round_number":1,"table_id":"t7","dealer_id":"d2"}`))
	require.Equal(t, RoundBetting, l.RoundState())

	require.True(t, l.AddBet(BetInfo{Type: BetPlayer, Amount: 100}))

	bus.ProcessRawMessage([]byte(`{"type":"deal_card","target":"player","card":{"suit":"spades","rank":"9"}}`))
	bus.ProcessRawMessage([]byte(`{"type":"deal_card","target":"banker","card":{"suit":"hearts","rank":"7"}}`))
	require.Len(t, l.PlayerHand().Cards, 1)
	require.Equal(t, 9, l.PlayerHand().Points())

	bus.ProcessRawMessage([]byte(`{"type":"game_result","main_result":"player"}`))

	assert.Equal(t, int64(1), l.Statistics().TotalRounds)
	assert.Empty(t, l.CurrentBets())
	history := l.BetHistory(0)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsWin)
	assert.InDelta(t, 1200.0, l.Balance(), 1e-9, "principal+payout credited on even-money win")

	rounds := l.RoundHistory(0)
	require.Len(t, rounds, 1)
	assert.Len(t, rounds[0].PlayerHand.Cards, 1, "dealt hands captured in the result")

	bus.ProcessRawMessage([]byte(`{"type":"round_state","state":"settling"}`))
	assert.Equal(t, RoundSettling, l.RoundState())
}

func TestSettlementWithoutOddsEntryFailsHard(t *testing.T) {
	bus := event.New(nil, nil)
	l := New(Config{InitialBalance: 1000}, bus, NewOddsTable(map[BetType]float64{BetPlayer: 1}))
	l.UpdateRoundState(RoundBetting)

	require.True(t, l.AddBet(BetInfo{Type: BetBanker, Amount: 10}))
	require.Panics(t, func() {
		l.OnRoundResult(RoundResult{MainResult: ResultBanker})
	})
}
