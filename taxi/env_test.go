package taxi

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zeu5/taxi-rl/rl"
)

func TestEncodeDecode(t *testing.T) {
	seen := make(map[int]bool)
	for row := 0; row < Rows; row++ {
		for col := 0; col < Cols; col++ {
			for p := 0; p <= InTaxi; p++ {
				for d := 0; d < 4; d++ {
					s := State{Taxi: Position{row, col}, Passenger: p, Destination: d}
					i := Encode(s)
					if i < 0 || i >= NumStates {
						t.Fatalf("%s encoded out of range: %d", s, i)
					}
					if Decode(i) != s {
						t.Errorf("decode(encode(%s)) = %s", s, Decode(i))
					}
					seen[i] = true
				}
			}
		}
	}
	if len(seen) != NumStates {
		t.Errorf("expected %d distinct states, got %d", NumStates, len(seen))
	}
}

func TestWalls(t *testing.T) {
	// wall between (0, 1) and (0, 2)
	s := State{Taxi: Position{0, 1}, Passenger: 0, Destination: 1}
	next, reward, _ := transition(s, East)
	if !next.Taxi.Eq(Position{0, 1}) || reward != RewardStep {
		t.Errorf("expected the wall to block East, got %s", next)
	}
	next, _, _ = transition(s, West)
	if !next.Taxi.Eq(Position{0, 0}) {
		t.Errorf("expected to move West, got %s", next)
	}
	// wall between (4, 0) and (4, 1)
	s.Taxi = Position{4, 1}
	next, _, _ = transition(s, West)
	if !next.Taxi.Eq(Position{4, 1}) {
		t.Errorf("expected the wall to block West, got %s", next)
	}
	// borders
	s.Taxi = Position{4, 4}
	next, _, _ = transition(s, South)
	if !next.Taxi.Eq(Position{4, 4}) {
		t.Errorf("expected the border to block South, got %s", next)
	}
	next, _, _ = transition(s, North)
	if !next.Taxi.Eq(Position{3, 4}) {
		t.Errorf("expected to move North, got %s", next)
	}
}

func TestPickupDropoff(t *testing.T) {
	// passenger at Y, destination G
	s := State{Taxi: Position{4, 0}, Passenger: 2, Destination: 1}
	next, reward, done := transition(s, Dropoff)
	if reward != RewardPenalty || done || next != s {
		t.Errorf("expected illegal dropoff, got %v %v %s", reward, done, next)
	}
	next, reward, _ = transition(s, Pickup)
	if reward != RewardStep || next.Passenger != InTaxi {
		t.Errorf("expected pickup, got %v %s", reward, next)
	}
	_, reward, _ = transition(next, Pickup)
	if reward != RewardPenalty {
		t.Errorf("expected illegal pickup with the passenger in the taxi, got %v", reward)
	}

	// dropping at another landmark leaves the passenger there
	atR := next
	atR.Taxi = Position{0, 0}
	other, reward, done := transition(atR, Dropoff)
	if reward != RewardStep || done || other.Passenger != 0 {
		t.Errorf("expected the passenger to be left at R, got %v %v %s", reward, done, other)
	}

	atG := next
	atG.Taxi = Position{0, 4}
	final, reward, done := transition(atG, Dropoff)
	if reward != RewardDropoff || !done || final.Passenger != 1 {
		t.Errorf("expected successful dropoff, got %v %v %s", reward, done, final)
	}
}

func TestReset(t *testing.T) {
	env := NewEnvironment(3)
	ctx := context.Background()
	if _, err := env.Step(ctx, 0); !errors.Is(err, ErrNotReset) {
		t.Errorf("expected step before reset to fail, got %v", err)
	}
	for i := 0; i < 500; i++ {
		state, err := env.Reset(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		s := Decode(state)
		if s.Passenger == InTaxi || s.Passenger == s.Destination {
			t.Fatalf("invalid initial state %s", s)
		}
	}
	if _, err := env.Step(ctx, NumActions); !errors.Is(err, rl.ErrActionOutOfRange) {
		t.Errorf("expected action out of range, got %v", err)
	}
}

func TestSeedRestartsResets(t *testing.T) {
	ctx := context.Background()
	a, b := NewEnvironment(1), NewEnvironment(2)
	a.Seed(5)
	b.Seed(5)
	for i := 0; i < 20; i++ {
		sa, _ := a.Reset(ctx)
		sb, _ := b.Reset(ctx)
		if sa != sb {
			t.Fatalf("reset %d differs after reseeding: %s != %s", i, Decode(sa), Decode(sb))
		}
	}
}

func TestTimeLimit(t *testing.T) {
	env := NewEnvironmentWithTimeLimit(1, 3)
	ctx := context.Background()
	env.Reset(ctx)
	env.Set(State{Taxi: Position{2, 2}, Passenger: 0, Destination: 1})
	for i := 0; i < 2; i++ {
		res, _ := env.Step(ctx, int(North))
		if res.Over() {
			t.Fatalf("episode over after %d steps", i+1)
		}
	}
	res, _ := env.Step(ctx, int(North))
	if !res.Truncated || res.Done {
		t.Errorf("expected truncation at the time limit, got %+v", res)
	}
}

func TestRender(t *testing.T) {
	buf := new(bytes.Buffer)
	s := State{Taxi: Position{2, 2}, Passenger: 0, Destination: 3}
	if err := Render(buf, s, false); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(desc) {
		t.Fatalf("expected %d lines, got %d", len(desc), len(lines))
	}
	if lines[3] != "| : :T: : |" {
		t.Errorf("unexpected taxi row %q", lines[3])
	}
}

func TestLearnsTaxi(t *testing.T) {
	if testing.Short() {
		t.Skip("training taxi")
	}
	env := NewEnvironment(21)
	trainer, err := rl.NewTrainer(env, rl.Hyperparameters{LearningRate: 0.5, Discount: 0.9, Epsilon: 0.1},
		rl.WithSeed(21), rl.WithPenalty(rl.PenaltyReward(RewardPenalty)), rl.WithProgress(0, nil))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err := trainer.Train(context.Background(), 5000); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	stats, err := trainer.Evaluate(context.Background(), 100, 200)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	done, steps, penalties := 0, 0, 0
	for _, s := range stats {
		if s.Done {
			done += 1
		}
		steps += s.Steps
		penalties += s.Penalties
	}
	t.Logf("greedy evaluation: %d/100 delivered, %d steps, %d penalties", done, steps, penalties)
	if done < 90 {
		t.Errorf("expected most greedy episodes to deliver the passenger, got %d/100", done)
	}
	if steps/len(stats) > 40 {
		t.Errorf("expected short greedy episodes, got %d steps on average", steps/len(stats))
	}
}
