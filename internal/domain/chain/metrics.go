package chain

import (
	"math"
)

// Pure sentiment/risk metrics over an assembled chain. All functions are
// total: absent legs and missing fields contribute zero, they never error.

// TotalOpenInterest sums open interest per side across the rows
func TotalOpenInterest(rows []ChainRow) (callOI, putOI int64) {
	for _, row := range rows {
		if row.Call != nil {
			callOI += row.Call.OI
		}
		if row.Put != nil {
			putOI += row.Put.OI
		}
	}
	return callOI, putOI
}

// PutCallRatio returns put OI / call OI rounded to 3 decimals. A chain with
// zero call OI reports 0, not an error.
func PutCallRatio(rows []ChainRow) float64 {
	callOI, putOI := TotalOpenInterest(rows)
	if callOI == 0 {
		return 0
	}
	return math.Round(float64(putOI)/float64(callOI)*1000) / 1000
}

// GammaExposure returns Σ oi·gamma·spot over every populated leg. Legs
// without a gamma value contribute nothing; gamma itself is supplied
// upstream by the feed or a pricing provider.
func GammaExposure(rows []ChainRow, spot float64) float64 {
	var gex float64
	for _, row := range rows {
		if row.Call != nil {
			gex += float64(row.Call.OI) * row.Call.Gamma * spot
		}
		if row.Put != nil {
			gex += float64(row.Put.OI) * row.Put.Gamma * spot
		}
	}
	return gex
}

// MaxPain returns the candidate settlement price minimizing aggregate option
// writer payout: for each candidate k the loss is
// Σ call.oi·max(0, k−strike) + put.oi·max(0, strike−k). Ties go to the
// smallest strike. An empty candidate set reports 0.
func MaxPain(rows []ChainRow, strikes []float64) float64 {
	if len(strikes) == 0 {
		return 0
	}

	best := strikes[0]
	bestLoss := math.Inf(1)

	for _, k := range strikes {
		loss := writerLossAt(rows, k)
		if loss < bestLoss || (loss == bestLoss && k < best) {
			best = k
			bestLoss = loss
		}
	}
	return best
}

func writerLossAt(rows []ChainRow, settlement float64) float64 {
	var loss float64
	for _, row := range rows {
		if row.Call != nil && settlement > row.Strike {
			loss += float64(row.Call.OI) * (settlement - row.Strike)
		}
		if row.Put != nil && settlement < row.Strike {
			loss += float64(row.Put.OI) * (row.Strike - settlement)
		}
	}
	return loss
}
