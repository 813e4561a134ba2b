package departures

import (
	"context"
	"reflect"
	"testing"
	"time"

	"departureboard/pkg/clock"
	"departureboard/pkg/types"
)

func TestProcess_SingleDeparture(t *testing.T) {
	p := NewProcessor(DefaultOptions(testResolver(t)))

	board := p.Process(context.Background(), []types.StationDepartures{
		{
			Station: types.Station{
				Name:       "Universitetet",
				Departures: []types.LineConfig{{Line: "11"}},
			},
			Departures: []types.RawDeparture{
				{Name: "Tunnelbana 11", Time: "08:00:00", Direction: "Mörby centrum"},
			},
		},
	})

	if len(board) != 1 {
		t.Fatalf("expected 1 row, got %d", len(board))
	}
	if board[0].TimeLeft != 10 {
		t.Errorf("TimeLeft = %d, want 10", int(board[0].TimeLeft))
	}
	if board[0].Time != "08:00" {
		t.Errorf("Time = %q, want %q", board[0].Time, "08:00")
	}
	if board[0].Station != "Universitetet" {
		t.Errorf("Station = %q, want Universitetet", board[0].Station)
	}
}

func TestProcess_CollapsesFollowUp(t *testing.T) {
	p := NewProcessor(DefaultOptions(testResolver(t)))

	board := p.Process(context.Background(), []types.StationDepartures{
		{
			Station: types.Station{
				Name:       "Universitetet",
				Departures: []types.LineConfig{{Line: "11", MinTimeThreshold: intPtr(2)}},
			},
			Departures: []types.RawDeparture{
				{Name: "Tunnelbana 11", Time: "08:10:00", Direction: "Akalla"},
				{Name: "Tunnelbana 11", Time: "07:55:00", Direction: "Akalla"},
			},
		},
	})

	if len(board) != 1 {
		t.Fatalf("expected 1 row, got %d", len(board))
	}
	if board[0].TimeLeft != 5 {
		t.Errorf("TimeLeft = %d, want 5", int(board[0].TimeLeft))
	}
	if board[0].NextDepartureTimeLeft == nil || *board[0].NextDepartureTimeLeft != 20 {
		t.Errorf("NextDepartureTimeLeft = %v, want 20", board[0].NextDepartureTimeLeft)
	}
}

func TestProcess_PinPriorityAndThreshold(t *testing.T) {
	p := NewProcessor(DefaultOptions(testResolver(t)))

	board := p.Process(context.Background(), []types.StationDepartures{
		{
			Station: types.Station{
				Name: "Universitetet",
				Departures: []types.LineConfig{
					{Line: "30"},
					{Line: "11", Prioritized: true},
				},
			},
			Departures: []types.RawDeparture{
				{Name: "Spårväg 30", Time: "08:30:00", Direction: "Sickla"},
				{Name: "Tunnelbana 11", Time: "08:05:00", Direction: "Akalla"},
			},
		},
		{
			Station: types.Station{
				Name:       "Odenplan",
				Departures: []types.LineConfig{{Line: "4"}},
			},
			Departures: []types.RawDeparture{
				{Name: "Buss 4", Time: "07:53:00", Direction: "Radiohuset"},
			},
		},
	})

	want := []string{"30", "11"}
	if !reflect.DeepEqual(names(board), want) {
		t.Fatalf("board order = %v, want %v", names(board), want)
	}
	if board[0].TimeLeft != 40 || board[1].TimeLeft != 15 {
		t.Errorf("time left = [%d %d], want [40 15]", int(board[0].TimeLeft), int(board[1].TimeLeft))
	}
	if !board[1].Prioritized {
		t.Error("line 11 should be prioritized")
	}
	if board[0].TransportType != types.TransportTram {
		t.Errorf("TransportType = %q, want %q", board[0].TransportType, types.TransportTram)
	}
}

func TestProcess_DropsUnconfiguredAndUnknown(t *testing.T) {
	p := NewProcessor(DefaultOptions(testResolver(t)))

	board := p.Process(context.Background(), []types.StationDepartures{
		{
			Station: types.Station{
				Name:       "Slussen",
				Departures: []types.LineConfig{{Line: "17"}},
			},
			Departures: []types.RawDeparture{
				{Name: "Färja 80", Time: "08:20:00", Direction: "Vaxholm"},
				{Name: "Tunnelbana 13", Time: "08:20:00", Direction: "Ropsten"},
				{Name: "Tunnelbana 17", Time: "late", Direction: "Åkeshov"},
			},
		},
	})

	if len(board) != 0 {
		t.Errorf("expected empty board, got %+v", board)
	}
}

func TestProcess_ConfigIsPerStation(t *testing.T) {
	p := NewProcessor(DefaultOptions(testResolver(t)))

	board := p.Process(context.Background(), []types.StationDepartures{
		{
			Station: types.Station{Name: "A", Departures: []types.LineConfig{{Line: "4"}}},
			Departures: []types.RawDeparture{
				{Name: "Buss 4", Time: "08:20:00", Direction: "Radiohuset"},
			},
		},
		{
			Station: types.Station{Name: "B", Departures: []types.LineConfig{{Line: "1"}}},
			Departures: []types.RawDeparture{
				{Name: "Buss 4", Time: "08:10:00", Direction: "Gullmarsplan"},
				{Name: "Buss 1", Time: "08:15:00", Direction: "Stora Essingen"},
			},
		},
	})

	want := []string{"1", "4"}
	if !reflect.DeepEqual(names(board), want) {
		t.Errorf("board order = %v, want %v", names(board), want)
	}
}

func TestProcess_Deterministic(t *testing.T) {
	p := NewProcessor(DefaultOptions(testResolver(t)))
	input := []types.StationDepartures{
		{
			Station: types.Station{
				Name: "Universitetet",
				Departures: []types.LineConfig{
					{Line: "30"}, {Line: "11", Prioritized: true}, {Line: "540"},
				},
			},
			Departures: []types.RawDeparture{
				{Name: "Buss 540", Time: "08:10:00", Direction: "Täby"},
				{Name: "Tunnelbana 11", Time: "08:10:00", Direction: "Akalla"},
				{Name: "Spårväg 30", Time: "08:10:00", Direction: "Sickla"},
				{Name: "Tunnelbana 11", Time: "08:20:00", Direction: "Akalla"},
			},
		},
	}

	first := p.Process(context.Background(), input)
	for i := 0; i < 10; i++ {
		if again := p.Process(context.Background(), input); !reflect.DeepEqual(again, first) {
			t.Fatalf("run %d differs:\n got %+v\nwant %+v", i, again, first)
		}
	}
}

func TestProcess_CustomOptions(t *testing.T) {
	p := NewProcessor(Options{
		Resolver:                testResolver(t),
		DefaultMinTimeThreshold: 0,
		PinnedLine:              "4",
	})

	board := p.Process(context.Background(), []types.StationDepartures{
		{
			Station: types.Station{
				Name:       "Odenplan",
				Departures: []types.LineConfig{{Line: "4"}, {Line: "30"}},
			},
			Departures: []types.RawDeparture{
				{Name: "Spårväg 30", Time: "07:52:00", Direction: "Sickla"},
				{Name: "Buss 4", Time: "07:53:00", Direction: "Radiohuset"},
			},
		},
	})

	want := []string{"4", "30"}
	if !reflect.DeepEqual(names(board), want) {
		t.Errorf("board order = %v, want %v", names(board), want)
	}
}

func TestProcess_SingleInstantPerCall(t *testing.T) {
	loc, err := time.LoadLocation(clock.ReferenceZone)
	if err != nil {
		t.Fatal(err)
	}
	// Every read of the live clock moves it forward one minute.
	reads := 0
	live := clock.New(loc, func() time.Time {
		reads++
		return time.Date(2024, 3, 1, 7, 49, 30, 0, loc).Add(time.Duration(reads) * time.Minute)
	})

	p := NewProcessor(DefaultOptions(live))
	station := func(name, direction string) types.StationDepartures {
		return types.StationDepartures{
			Station:    types.Station{Name: name, Departures: []types.LineConfig{{Line: "11"}}},
			Departures: []types.RawDeparture{{Name: "Tunnelbana 11", Time: "08:10:00", Direction: direction}},
		}
	}

	board := p.Process(context.Background(), []types.StationDepartures{
		station("Universitetet", "Akalla"),
		station("Tekniska högskolan", "Kungsträdgården"),
		station("Odenplan", "Mörby centrum"),
	})

	if len(board) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(board))
	}
	for _, row := range board {
		if row.TimeLeft != board[0].TimeLeft {
			t.Errorf("%s TimeLeft = %d, want %d for every row", row.Station, int(row.TimeLeft), int(board[0].TimeLeft))
		}
	}
	if board[0].TimeLeft != 20 {
		t.Errorf("TimeLeft = %d, want 20", int(board[0].TimeLeft))
	}
}
