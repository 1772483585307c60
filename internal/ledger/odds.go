package ledger

import (
	"fmt"

	"github.com/yola1107/baccarat/library/log"
)

// OddsTable maps each bet type to its payout multiplier. The ledger consumes
// it; it never owns or mutates it.
type OddsTable struct {
	odds map[BetType]float64
}

func NewOddsTable(odds map[BetType]float64) *OddsTable {
	t := &OddsTable{odds: make(map[BetType]float64, len(odds))}
	for k, v := range odds {
		t.odds[k] = v
	}
	return t
}

// DefaultOddsTable carries the standard table: banker pays 0.95 (commission),
// side bets per the usual live-table paytable.
func DefaultOddsTable() *OddsTable {
	return NewOddsTable(map[BetType]float64{
		BetPlayer:     1,
		BetBanker:     0.95,
		BetTie:        8,
		BetPlayerPair: 11,
		BetBankerPair: 11,
		BetLucky6:     12,
		BetDragon7:    40,
		BetPanda8:     25,
	})
}

// OddsTableFromConf builds a table from the yaml odds map; unknown keys are
// logged and skipped.
func OddsTableFromConf(odds map[string]float64) (*OddsTable, error) {
	if len(odds) == 0 {
		return nil, fmt.Errorf("odds: empty table")
	}
	m := make(map[BetType]float64, len(odds))
	for name, v := range odds {
		t, ok := ParseBetType(name)
		if !ok {
			log.Warnf("odds: unknown bet type %q skipped", name)
			continue
		}
		m[t] = v
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("odds: no recognized bet types")
	}
	return NewOddsTable(m), nil
}

func (o *OddsTable) Odds(t BetType) (float64, bool) {
	v, ok := o.odds[t]
	return v, ok
}
