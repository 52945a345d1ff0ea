package taxi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeu5/taxi-rl/rl"
	"golang.org/x/exp/rand"
)

const (
	Rows = 5
	Cols = 5

	// passenger index when riding in the taxi
	InTaxi = 4

	NumStates  = Rows * Cols * 5 * 4
	NumActions = 6

	RewardStep    = -1.0
	RewardDropoff = 20.0
	// illegal pickup or dropoff
	RewardPenalty = -10.0
)

var ErrNotReset = errors.New("step called before reset")

// Action of the taxi
type Action int

const (
	South Action = iota
	North
	East
	West
	Pickup
	Dropoff
)

func (a Action) String() string {
	switch a {
	case South:
		return "South"
	case North:
		return "North"
	case East:
		return "East"
	case West:
		return "West"
	case Pickup:
		return "Pickup"
	case Dropoff:
		return "Dropoff"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// the map, ':' are passable, '|' are walls
var desc = []string{
	"+---------+",
	"|R: | : :G|",
	"| : | : : |",
	"| : : : : |",
	"| | : | : |",
	"|Y| : |B: |",
	"+---------+",
}

type Position struct {
	Row int
	Col int
}

func (p Position) Eq(other Position) bool {
	return p.Row == other.Row && p.Col == other.Col
}

// Landmarks R, G, Y, B
var Landmarks = []Position{{0, 0}, {0, 4}, {4, 0}, {4, 3}}

var landmarkNames = []string{"R", "G", "Y", "B"}

func landmarkIndex(p Position) int {
	for i, l := range Landmarks {
		if l.Eq(p) {
			return i
		}
	}
	return -1
}

// State of the environment in decoded form
type State struct {
	Taxi        Position
	Passenger   int
	Destination int
}

// Encode the state to an index in [0, NumStates)
func Encode(s State) int {
	i := s.Taxi.Row
	i = i*Cols + s.Taxi.Col
	i = i*5 + s.Passenger
	i = i*4 + s.Destination
	return i
}

func Decode(i int) State {
	s := State{}
	s.Destination = i % 4
	i = i / 4
	s.Passenger = i % 5
	i = i / 5
	s.Taxi.Col = i % Cols
	s.Taxi.Row = i / Cols
	return s
}

func (s State) String() string {
	passenger := "Taxi"
	if s.Passenger < InTaxi {
		passenger = landmarkNames[s.Passenger]
	}
	return fmt.Sprintf("(%d, %d) passenger:%s destination:%s", s.Taxi.Row, s.Taxi.Col, passenger, landmarkNames[s.Destination])
}

// Environment is the Taxi-v3 task: pick up the passenger and drop them at the destination
type Environment struct {
	// TimeLimit truncates episodes after the given number of steps, 0 means unlimited
	TimeLimit int

	lock  *sync.Mutex
	rand  *rand.Rand
	state State
	steps int
	reset bool
}

var _ rl.Environment = &Environment{}

func NewEnvironment(seed uint64) *Environment {
	return &Environment{
		lock: new(sync.Mutex),
		rand: newRand(seed),
	}
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewSource(seed))
}

// NewEnvironmentWithTimeLimit matches the registered Taxi-v3 with a 200 step limit
func NewEnvironmentWithTimeLimit(seed uint64, limit int) *Environment {
	e := NewEnvironment(seed)
	e.TimeLimit = limit
	return e
}

func (e *Environment) StateCount() int {
	return NumStates
}

func (e *Environment) ActionCount() int {
	return NumActions
}

// Seed replaces the random source used by subsequent resets, 0 seeds from the clock
func (e *Environment) Seed(seed uint64) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.rand = newRand(seed)
}

// Current returns the decoded current state
func (e *Environment) Current() State {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.state
}

// Reset places the taxi uniformly at random and the passenger at a landmark other than the destination
func (e *Environment) Reset(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	e.lock.Lock()
	defer e.lock.Unlock()

	passenger := e.rand.Intn(4)
	destination := e.rand.Intn(3)
	if destination >= passenger {
		destination += 1
	}
	e.state = State{
		Taxi:        Position{Row: e.rand.Intn(Rows), Col: e.rand.Intn(Cols)},
		Passenger:   passenger,
		Destination: destination,
	}
	e.steps = 0
	e.reset = true
	return Encode(e.state), nil
}

// Set the current state, used to start from a known configuration
func (e *Environment) Set(s State) error {
	if s.Taxi.Row < 0 || s.Taxi.Row >= Rows || s.Taxi.Col < 0 || s.Taxi.Col >= Cols ||
		s.Passenger < 0 || s.Passenger > InTaxi || s.Destination < 0 || s.Destination > 3 {
		return fmt.Errorf("%w: %s", rl.ErrStateOutOfRange, s)
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	e.state = s
	e.steps = 0
	e.reset = true
	return nil
}

func (e *Environment) Step(ctx context.Context, action int) (rl.StepResult, error) {
	if err := ctx.Err(); err != nil {
		return rl.StepResult{}, err
	}
	if action < 0 || action >= NumActions {
		return rl.StepResult{}, fmt.Errorf("%w: %d", rl.ErrActionOutOfRange, action)
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if !e.reset {
		return rl.StepResult{}, ErrNotReset
	}

	next, reward, done := transition(e.state, Action(action))
	e.state = next
	e.steps += 1

	result := rl.StepResult{State: Encode(next), Reward: reward, Done: done}
	if !done && e.TimeLimit > 0 && e.steps >= e.TimeLimit {
		result.Truncated = true
	}
	return result, nil
}

func (e *Environment) SampleAction(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.rand.Intn(NumActions), nil
}

// transition is the deterministic dynamics of the task
func transition(s State, a Action) (State, float64, bool) {
	next := s
	reward := RewardStep
	done := false
	row, col := s.Taxi.Row, s.Taxi.Col

	switch a {
	case South:
		next.Taxi.Row = min(row+1, Rows-1)
	case North:
		next.Taxi.Row = max(row-1, 0)
	case East:
		if desc[1+row][2*col+2] == ':' {
			next.Taxi.Col = min(col+1, Cols-1)
		}
	case West:
		if desc[1+row][2*col] == ':' {
			next.Taxi.Col = max(col-1, 0)
		}
	case Pickup:
		if s.Passenger < InTaxi && s.Taxi.Eq(Landmarks[s.Passenger]) {
			next.Passenger = InTaxi
		} else {
			reward = RewardPenalty
		}
	case Dropoff:
		landmark := landmarkIndex(s.Taxi)
		if s.Passenger == InTaxi && landmark == s.Destination {
			next.Passenger = s.Destination
			reward = RewardDropoff
			done = true
		} else if s.Passenger == InTaxi && landmark >= 0 {
			next.Passenger = landmark
		} else {
			reward = RewardPenalty
		}
	}
	return next, reward, done
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
