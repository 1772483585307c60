package ledger

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/samber/lo"

	"github.com/yola1107/baccarat/internal/event"
	"github.com/yola1107/baccarat/library/log"
)

type Config struct {
	InitialBalance float64
	HistoryCap     int // <=0: unbounded
}

// Ledger is the authoritative in-process record of one player's balance, the
// round in progress and the settlement of each round's bets.
//
// AddBet does not debit the balance; the caller reconciles an optimistic
// debit (CanPlaceBet + DeductBalance) before placing. Settlement is the only
// gameplay path that credits it.
type Ledger struct {
	mu   sync.RWMutex
	cfg  Config
	bus  *event.Bus
	odds *OddsTable

	balance    float64
	bets       map[BetType]*BetInfo
	totalOpen  float64
	round      *RoundInfo
	playerHand HandInfo
	bankerHand HandInfo

	roundHistory []RoundResult
	betHistory   []BetInfo
	settlements  []BetSettlement
	stats        GameStatistics

	gameState  GameState
	roundState RoundState

	subs []*event.Subscription
}

// New builds a ledger. A nil bus or odds table is a wiring bug, not a runtime
// condition, so it fails hard.
func New(cfg Config, bus *event.Bus, odds *OddsTable) *Ledger {
	if bus == nil {
		panic("ledger: nil bus")
	}
	if odds == nil {
		panic("ledger: nil odds table")
	}
	return &Ledger{
		cfg:     cfg,
		bus:     bus,
		odds:    odds,
		balance: cfg.InitialBalance,
		bets:    make(map[BetType]*BetInfo),
	}
}

// Attach subscribes the ledger to the round/bet lifecycle events.
func (l *Ledger) Attach() {
	l.subs = append(l.subs,
		l.bus.Subscribe(event.KindRoundStart, l.handleRoundStart),
		l.bus.Subscribe(event.KindDealCard, l.handleDealCard),
		l.bus.Subscribe(event.KindGameResult, l.handleGameResult),
		l.bus.Subscribe(event.KindRoundStateUpdate, l.handleRoundStateUpdate),
	)
}

// Detach removes the subscriptions added by Attach.
func (l *Ledger) Detach() {
	for _, sub := range l.subs {
		l.bus.Unsubscribe(sub)
	}
	l.subs = nil
}

/*
	事件入口（wire -> domain）
*/

func (l *Ledger) handleRoundStart(ev event.Event) {
	rs, ok := ev.(*event.RoundStart)
	if !ok {
		return
	}
	l.OnRoundStart(RoundInfo{
		RoundID:     rs.RoundID,
		RoundNumber: rs.RoundNumber,
		TableID:     rs.TableID,
		DealerID:    rs.DealerID,
	})
}

func (l *Ledger) handleDealCard(ev event.Event) {
	dc, ok := ev.(*event.DealCard)
	if !ok {
		return
	}
	l.OnDealCard(dc.Target, Card{Suit: dc.Card.Suit, Rank: dc.Card.Rank})
}

func (l *Ledger) handleGameResult(ev event.Event) {
	gr, ok := ev.(*event.GameResult)
	if !ok {
		return
	}
	main, ok := ParseMainResult(gr.MainResult)
	if !ok {
		log.Warnf("ledger: unknown main result %q, round dropped", gr.MainResult)
		return
	}
	res := RoundResult{
		MainResult:    main,
		HasPlayerPair: gr.HasPlayerPair,
		HasBankerPair: gr.HasBankerPair,
		IsLucky6:      gr.IsLucky6,
		IsDragon7:     gr.IsDragon7,
		IsPanda8:      gr.IsPanda8,
		PlayerHand:    wireHand(gr.PlayerCards),
		BankerHand:    wireHand(gr.BankerCards),
	}
	if len(res.PlayerHand.Cards) == 0 && len(res.BankerHand.Cards) == 0 {
		// server omitted final hands; use what was dealt
		l.mu.RLock()
		res.PlayerHand = cloneHand(l.playerHand)
		res.BankerHand = cloneHand(l.bankerHand)
		l.mu.RUnlock()
	}
	l.OnRoundResult(res)
}

func (l *Ledger) handleRoundStateUpdate(ev event.Event) {
	up, ok := ev.(*event.RoundStateUpdate)
	if !ok {
		return
	}
	state, ok := ParseRoundState(up.State)
	if !ok {
		log.Warnf("ledger: unknown round state %q ignored", up.State)
		return
	}
	l.UpdateRoundState(state)
}

func wireHand(cards []event.Card) HandInfo {
	h := HandInfo{}
	for _, c := range cards {
		h.Cards = append(h.Cards, Card{Suit: c.Suit, Rank: c.Rank})
	}
	return h
}

/*
	回合生命周期
*/

// OnRoundStart adopts the new round identity, clears the previous round's
// transient data and opens the betting window.
func (l *Ledger) OnRoundStart(info RoundInfo) {
	l.mu.Lock()
	l.clearRoundDataLocked()
	l.round = &info
	old := l.roundState
	l.roundState = RoundBetting
	l.mu.Unlock()

	log.Infof("round start. id=%q number=%d table=%q", info.RoundID, info.RoundNumber, info.TableID)
	l.publishRoundState(old, RoundBetting)
}

// ClearCurrentRoundData drops hands and round identity; open bets are left
// for settlement.
func (l *Ledger) ClearCurrentRoundData() {
	l.mu.Lock()
	l.clearRoundDataLocked()
	l.mu.Unlock()
}

func (l *Ledger) clearRoundDataLocked() {
	l.playerHand = HandInfo{}
	l.bankerHand = HandInfo{}
	l.round = nil
}

// OnDealCard appends a card to the player or banker hand.
func (l *Ledger) OnDealCard(target string, c Card) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch target {
	case "player":
		l.playerHand.Cards = append(l.playerHand.Cards, c)
	case "banker":
		l.bankerHand.Cards = append(l.bankerHand.Cards, c)
	default:
		log.Warnf("ledger: deal for unknown target %q ignored", target)
	}
}

// OnRoundResult settles every open bet against res, updates statistics and
// history, credits winners and empties the open-bet set.
func (l *Ledger) OnRoundResult(res RoundResult) {
	l.mu.Lock()

	l.roundHistory = appendCapped(l.roundHistory, res, l.cfg.HistoryCap)

	l.stats.TotalRounds++
	switch res.MainResult {
	case ResultPlayer:
		l.stats.PlayerWins++
	case ResultBanker:
		l.stats.BankerWins++
	case ResultTie:
		l.stats.Ties++
	}
	if res.HasPlayerPair {
		l.stats.PlayerPairs++
	}
	if res.HasBankerPair {
		l.stats.BankerPairs++
	}

	var pending []event.Event
	for _, t := range AllBetTypes {
		bet, ok := l.bets[t]
		if !ok {
			continue
		}
		settlement := l.settleLocked(bet, res)
		l.settlements = appendCapped(l.settlements, settlement, l.cfg.HistoryCap)
		l.betHistory = appendCapped(l.betHistory, *bet, l.cfg.HistoryCap)

		if settlement.IsWin {
			old := l.balance
			l.balance += settlement.WinAmount
			pending = append(pending, &event.BalanceChanged{Old: old, New: l.balance})
		}
		pending = append(pending, &event.BetSettled{
			SettlementID: settlement.SettlementID,
			BetID:        settlement.BetID,
			BetType:      settlement.Type.String(),
			BetAmount:    settlement.BetAmount,
			IsWin:        settlement.IsWin,
			Payout:       settlement.Payout,
			WinAmount:    settlement.WinAmount,
		})
	}

	l.bets = make(map[BetType]*BetInfo)
	l.totalOpen = 0
	stats := l.stats
	l.mu.Unlock()

	for _, ev := range pending {
		l.bus.Publish(ev)
	}
	l.bus.Publish(statsEvent(stats))
}

// settleLocked computes the one-and-only settlement for bet against res and
// marks the bet settled.
func (l *Ledger) settleLocked(bet *BetInfo, res RoundResult) BetSettlement {
	win := Wins(bet.Type, res)
	payout := 0.0
	if win {
		odd, ok := l.odds.Odds(bet.Type)
		if !ok {
			panic(fmt.Sprintf("ledger: odds table has no entry for %v", bet.Type))
		}
		payout = bet.Amount * odd
	}
	winAmount := 0.0
	if win {
		winAmount = bet.Amount + payout
	}

	bet.Status = BetStatusSettled
	bet.IsWin = win
	bet.WinAmount = winAmount

	return BetSettlement{
		SettlementID: uuid.New().String(),
		BetID:        bet.BetID,
		Type:         bet.Type,
		BetAmount:    bet.Amount,
		IsWin:        win,
		Payout:       payout,
		WinAmount:    winAmount,
	}
}

/*
	下注
*/

// CanPlaceBet reports whether a bet of this type and amount is placeable now.
func (l *Ledger) CanPlaceBet(t BetType, amount float64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.roundState != RoundBetting {
		return false
	}
	if amount <= 0 || amount > l.balance {
		return false
	}
	_, exists := l.bets[t]
	return !exists
}

// AddBet inserts or replaces the open bet for its type. The balance is not
// debited here.
func (l *Ledger) AddBet(bet BetInfo) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bet.Amount <= 0 {
		log.Warnf("addBet rejected: non-positive amount %v", bet.Amount)
		return false
	}
	if bet.Amount > l.balance {
		log.Warnf("addBet rejected: amount %v exceeds balance %v", bet.Amount, l.balance)
		return false
	}
	if bet.BetID == "" {
		id, _ := gonanoid.New(10)
		bet.BetID = "BET-" + id
	}
	bet.Status = BetStatusOpen
	bet.IsWin = false
	bet.WinAmount = 0

	l.bets[bet.Type] = &bet
	l.recomputeTotalOpenLocked()
	return true
}

// RemoveBet removes one open bet by id.
func (l *Ledger) RemoveBet(betID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for t, bet := range l.bets {
		if bet.BetID == betID {
			delete(l.bets, t)
			l.recomputeTotalOpenLocked()
			return true
		}
	}
	log.Warnf("removeBet: no open bet with id %q", betID)
	return false
}

// RemoveBetByType removes the open bet of one type.
func (l *Ledger) RemoveBetByType(t BetType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.bets[t]; !ok {
		return false
	}
	delete(l.bets, t)
	l.recomputeTotalOpenLocked()
	return true
}

func (l *Ledger) recomputeTotalOpenLocked() {
	l.totalOpen = lo.SumBy(lo.Values(l.bets), func(b *BetInfo) float64 { return b.Amount })
}

/*
	余额
*/

// UpdatePlayerBalance overwrites the balance (server-authoritative sync).
func (l *Ledger) UpdatePlayerBalance(newBalance float64) bool {
	if newBalance < 0 {
		log.Warnf("updatePlayerBalance rejected: negative %v", newBalance)
		return false
	}
	l.mu.Lock()
	old := l.balance
	l.balance = newBalance
	l.mu.Unlock()

	if old != newBalance {
		l.bus.Publish(&event.BalanceChanged{Old: old, New: newBalance})
	}
	return true
}

// DeductBalance fails without mutation when amount exceeds the balance.
func (l *Ledger) DeductBalance(amount float64) bool {
	l.mu.Lock()
	if amount < 0 || amount > l.balance {
		balance := l.balance
		l.mu.Unlock()
		log.Warnf("deductBalance rejected: amount=%v balance=%v", amount, balance)
		return false
	}
	old := l.balance
	l.balance -= amount
	next := l.balance
	l.mu.Unlock()

	l.bus.Publish(&event.BalanceChanged{Old: old, New: next})
	return true
}

func (l *Ledger) AddBalance(amount float64) bool {
	if amount < 0 {
		log.Warnf("addBalance rejected: negative %v", amount)
		return false
	}
	l.mu.Lock()
	old := l.balance
	l.balance += amount
	next := l.balance
	l.mu.Unlock()

	l.bus.Publish(&event.BalanceChanged{Old: old, New: next})
	return true
}

/*
	状态迁移
*/

func (l *Ledger) UpdateRoundState(state RoundState) {
	l.mu.Lock()
	old := l.roundState
	l.roundState = state
	l.mu.Unlock()
	l.publishRoundState(old, state)
}

func (l *Ledger) UpdateGameState(state GameState) {
	l.mu.Lock()
	old := l.gameState
	l.gameState = state
	l.mu.Unlock()
	if old != state {
		l.bus.Publish(&event.GameStateChanged{Old: old.String(), New: state.String()})
	}
}

func (l *Ledger) publishRoundState(old, next RoundState) {
	if old == next {
		return
	}
	l.bus.Publish(&event.RoundStateChanged{Old: old.String(), New: next.String()})
}

/*
	查询（返回防御性拷贝）
*/

func (l *Ledger) Balance() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance
}

func (l *Ledger) TotalBetAmount() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalOpen
}

// CurrentBets returns the open bets in bet-type order.
func (l *Ledger) CurrentBets() []BetInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]BetInfo, 0, len(l.bets))
	for _, t := range AllBetTypes {
		if bet, ok := l.bets[t]; ok {
			out = append(out, *bet)
		}
	}
	return out
}

// BetHistory returns the most recent count entries in chronological order;
// count <= 0 returns everything.
func (l *Ledger) BetHistory(count int) []BetInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lastN(l.betHistory, count)
}

func (l *Ledger) RoundHistory(count int) []RoundResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	window := lastN(l.roundHistory, count)
	out := make([]RoundResult, len(window))
	if err := copier.CopyWithOption(&out, window, copier.Option{DeepCopy: true}); err != nil {
		log.Errorf("roundHistory copy: %v", err)
		return nil
	}
	return out
}

func (l *Ledger) Settlements(count int) []BetSettlement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lastN(l.settlements, count)
}

func (l *Ledger) Statistics() GameStatistics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

func (l *Ledger) PlayerHand() HandInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneHand(l.playerHand)
}

func (l *Ledger) BankerHand() HandInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneHand(l.bankerHand)
}

func (l *Ledger) CurrentRoundInfo() (RoundInfo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.round == nil {
		return RoundInfo{}, false
	}
	return *l.round, true
}

func (l *Ledger) RoundState() RoundState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.roundState
}

func (l *Ledger) GameState() GameState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.gameState
}

/*
	重置
*/

// ResetAllData restores the configured balance and clears bets, history and
// statistics. Round/game state are untouched.
func (l *Ledger) ResetAllData() {
	l.mu.Lock()
	old := l.balance
	l.balance = l.cfg.InitialBalance
	l.bets = make(map[BetType]*BetInfo)
	l.totalOpen = 0
	l.betHistory = nil
	l.roundHistory = nil
	l.settlements = nil
	l.stats = GameStatistics{}
	l.clearRoundDataLocked()
	next := l.balance
	stats := l.stats
	l.mu.Unlock()

	log.Infof("ledger reset. balance=%v", next)
	if old != next {
		l.bus.Publish(&event.BalanceChanged{Old: old, New: next})
	}
	l.bus.Publish(statsEvent(stats))
}

/*
	helpers
*/

func statsEvent(s GameStatistics) *event.StatisticsUpdated {
	return &event.StatisticsUpdated{
		TotalRounds: s.TotalRounds,
		PlayerWins:  s.PlayerWins,
		BankerWins:  s.BankerWins,
		Ties:        s.Ties,
		PlayerPairs: s.PlayerPairs,
		BankerPairs: s.BankerPairs,
	}
}

func cloneHand(h HandInfo) HandInfo {
	out := HandInfo{}
	if len(h.Cards) > 0 {
		out.Cards = append([]Card{}, h.Cards...)
	}
	return out
}

func appendCapped[T any](list []T, v T, limit int) []T {
	list = append(list, v)
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}

func lastN[T any](list []T, count int) []T {
	if count <= 0 || count >= len(list) {
		return append([]T{}, list...)
	}
	return append([]T{}, list[len(list)-count:]...)
}
