package client

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodePayload_Kinds(t *testing.T) {
	tests := []struct {
		name string
		body string
		want PayloadKind
	}{
		{"daily series", `{"Meta Data": {}, "Time Series (Daily)": {"2024-01-02": {"4. close": "1"}}}`, KindTimeSeries},
		{"indicator", `{"Meta Data": {}, "Technical Analysis: RSI": {}}`, KindTimeSeries},
		{"quote", `{"Global Quote": {"01. symbol": "IBM"}}`, KindRecord},
		{"overview", `{"Symbol": "IBM", "Name": "International Business Machines"}`, KindRecord},
		{"options", `{"endpoint": "Historical Options", "data": [{"strike": "100"}]}`, KindList},
		{"news", `{"items": "1", "feed": []}`, KindList},
		{"top-level array", `[1, 2]`, KindList},
		{"other", `{"foo": "bar"}`, KindDocument},
		{"csv", "timestamp,open\n2024-01-02,1\n", KindText},
		{"empty", "", KindText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := decodePayload("X", []byte(tt.body))
			if err != nil {
				t.Fatalf("decodePayload() error = %v", err)
			}
			if p.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", p.Kind, tt.want)
			}
		})
	}
}

func TestDecodePayload_Sentinels(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantError    string
		wantAdvisory string
	}{
		{"error message", `{"Error Message": "Invalid API call."}`, "Invalid API call.", ""},
		{"note", `{"Note": "Thank you for using Alpha Vantage!"}`, "", "Thank you for using Alpha Vantage!"},
		{"information", `{"Information": "Daily limit reached"}`, "", "Daily limit reached"},
		{"null error message is absent", `{"Error Message": null, "Global Quote": {}}`, "", ""},
		{"empty error message is absent", `{"Error Message": "", "Global Quote": {}}`, "", ""},
		{"plain success", `{"Global Quote": {}}`, "", ""},
		{"array has no sentinels", `[{"Error Message": "nested"}]`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := decodePayload("X", []byte(tt.body))
			if err != nil {
				t.Fatalf("decodePayload() error = %v", err)
			}
			if p.ErrorMessage() != tt.wantError {
				t.Errorf("ErrorMessage() = %q, want %q", p.ErrorMessage(), tt.wantError)
			}
			if p.Advisory != tt.wantAdvisory {
				t.Errorf("Advisory = %q, want %q", p.Advisory, tt.wantAdvisory)
			}
		})
	}
}

func TestDecodePayload_Malformed(t *testing.T) {
	_, err := decodePayload("X", []byte(`{"broken": `))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("error = %v, want ErrMalformedPayload", err)
	}
}

func TestDecodePayload_TrailingData(t *testing.T) {
	_, err := decodePayload("X", []byte(`{"a": 1} {"b": 2}`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("error = %v, want ErrMalformedPayload", err)
	}
}

func TestDecodePayload_NumbersKeepText(t *testing.T) {
	p, err := decodePayload("HISTORICAL_OPTIONS", []byte(`{"data": [{"strike": 0.1, "volume": 12345678901234567890, "mark": 101.50}]}`))
	if err != nil {
		t.Fatalf("decodePayload() error = %v", err)
	}

	strike, ok := p.Doc.Path("data.0.strike").Data().(json.Number)
	if !ok {
		t.Fatalf("strike decoded as %T, want json.Number", p.Doc.Path("data.0.strike").Data())
	}
	if strike.String() != "0.1" {
		t.Errorf("strike = %s, want 0.1", strike)
	}

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"data":[{"mark":101.50,"strike":0.1,"volume":12345678901234567890}]}`
	if string(b) != want {
		t.Errorf("Marshal() = %s, want %s", b, want)
	}
}

func TestPayload_SeriesKeys(t *testing.T) {
	p, _ := decodePayload("X", []byte(`{"Meta Data": {}, "Time Series (5min)": {}, "Technical Analysis: SMA": {}}`))

	keys := p.SeriesKeys()
	if len(keys) != 2 || keys[0] != "Technical Analysis: SMA" || keys[1] != "Time Series (5min)" {
		t.Errorf("SeriesKeys() = %v", keys)
	}
}

func TestPayload_MarshalJSON(t *testing.T) {
	p, _ := decodePayload("X", []byte(`{"Global Quote": {"05. price": "101.50"}}`))

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `{"Global Quote":{"05. price":"101.50"}}` {
		t.Errorf("Marshal() = %s", b)
	}

	text, _ := decodePayload("X", []byte("a,b\n"))
	b, _ = json.Marshal(text)
	if string(b) != `"a,b\n"` {
		t.Errorf("Marshal(text) = %s", b)
	}
}
