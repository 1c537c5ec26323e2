package okx

import (
	"fmt"
	"strconv"

	"okx-candle-lab/internal/domain"
)

// apiEnvelope is the common OKX v5 REST response wrapper. A code other
// than "0" carries the failure in msg even when the HTTP status is 200.
type apiEnvelope struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// candleEnvelope wraps candle endpoints, whose data is an array of
// positional string arrays.
type candleEnvelope struct {
	apiEnvelope
	Data [][]string `json:"data"`
}

// fundingEnvelope wraps the public funding-rate endpoint.
type fundingEnvelope struct {
	apiEnvelope
	Data []struct {
		InstID      string `json:"instId"`
		FundingRate string `json:"fundingRate"`
	} `json:"data"`
}

// tickerEnvelope wraps the market ticker endpoints.
type tickerEnvelope struct {
	apiEnvelope
	Data []tickerPayload `json:"data"`
}

type tickerPayload struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	AskPx     string `json:"askPx"`
	BidPx     string `json:"bidPx"`
	Open24h   string `json:"open24h"`
	High24h   string `json:"high24h"`
	Low24h    string `json:"low24h"`
	Vol24h    string `json:"vol24h"`
	VolCcy24h string `json:"volCcy24h"`
	TS        string `json:"ts"`
}

// Ticker is a 24-hour market snapshot for one instrument.
type Ticker struct {
	Instrument  string
	Last        float64
	AskPrice    float64
	BidPrice    float64
	Open24h     float64
	High24h     float64
	Low24h      float64
	BaseVolume  float64
	QuoteVolume float64
	Timestamp   int64
}

// parseTicker converts a wire ticker into numeric form. Illiquid
// instruments report empty price fields, which decode to zero.
func parseTicker(p tickerPayload) (Ticker, error) {
	t := Ticker{Instrument: p.InstID}

	if p.TS != "" {
		ts, err := strconv.ParseInt(p.TS, 10, 64)
		if err != nil {
			return Ticker{}, fmt.Errorf("ticker %s timestamp %q: %w", p.InstID, p.TS, err)
		}
		t.Timestamp = ts
	}

	fields := []struct {
		name string
		dst  *float64
		raw  string
	}{
		{"last", &t.Last, p.Last},
		{"askPx", &t.AskPrice, p.AskPx},
		{"bidPx", &t.BidPrice, p.BidPx},
		{"open24h", &t.Open24h, p.Open24h},
		{"high24h", &t.High24h, p.High24h},
		{"low24h", &t.Low24h, p.Low24h},
		{"vol24h", &t.BaseVolume, p.Vol24h},
		{"volCcy24h", &t.QuoteVolume, p.VolCcy24h},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return Ticker{}, fmt.Errorf("ticker %s %s %q: %w", p.InstID, f.name, f.raw, err)
		}
		*f.dst = v
	}
	return t, nil
}

// APIError is a non-zero OKX response code. These are terminal for the
// request that produced them; the client never retries them.
type APIError struct {
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("okx api error %s: %s", e.Code, e.Msg)
}

// Candle wire layout, newest-first:
//
//	[0] ts          open time, ms
//	[1] o           open
//	[2] h           high
//	[3] l           low
//	[4] c           close
//	[5] vol         base currency volume
//	[6] volCcy      quote currency volume
//	[7] volCcyQuote quote volume in quote currency (USDT pairs)
//	[8] confirm     "1" = closed, "0" = still forming
const minKlineFields = 7

// parseKlines converts OKX wire rows into candles in ascending order.
func parseKlines(rows [][]string) ([]domain.Candle, error) {
	out := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < minKlineFields {
			return nil, fmt.Errorf("kline[%d] has %d fields, want at least %d", i, len(row), minKlineFields)
		}

		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("kline[%d] timestamp %q: %w", i, row[0], err)
		}

		var c domain.Candle
		c.Timestamp = ts
		fields := []struct {
			name string
			dst  *float64
			raw  string
		}{
			{"open", &c.Open, row[1]},
			{"high", &c.High, row[2]},
			{"low", &c.Low, row[3]},
			{"close", &c.Close, row[4]},
			{"vol", &c.BaseVolume, row[5]},
			{"volCcy", &c.QuoteVolume, row[6]},
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(f.raw, 64)
			if err != nil {
				return nil, fmt.Errorf("kline[%d] %s %q: %w", i, f.name, f.raw, err)
			}
			*f.dst = v
		}
		c.IsClosed = len(row) > 8 && row[8] == "1"
		out = append(out, c)
	}

	// OKX serves newest-first; callers expect chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
