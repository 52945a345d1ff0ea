package taxi

import (
	"fmt"
	"io"
	"strings"

	"github.com/logrusorgru/aurora"
)

// Render writes the map with the taxi, passenger and destination highlighted.
// With color disabled the taxi is drawn as 'T', or 'P' when carrying the passenger.
func Render(w io.Writer, s State, color bool) error {
	au := aurora.NewAurora(color)
	var b strings.Builder
	for i, line := range desc {
		if i == 0 || i == len(desc)-1 {
			b.WriteString(line + "\n")
			continue
		}
		row := i - 1
		for j, c := range line {
			if j%2 == 0 {
				b.WriteRune(c)
				continue
			}
			col := (j - 1) / 2
			pos := Position{Row: row, Col: col}
			cell := string(c)

			switch {
			case s.Taxi.Eq(pos):
				switch {
				case s.Passenger == InTaxi && color:
					cell = au.BgGreen(cell).String()
				case s.Passenger == InTaxi:
					cell = "P"
				case color:
					cell = au.BgYellow(cell).String()
				default:
					cell = "T"
				}
			case s.Passenger < InTaxi && Landmarks[s.Passenger].Eq(pos):
				cell = au.Bold(au.Blue(cell)).String()
			case Landmarks[s.Destination].Eq(pos):
				cell = au.Bold(au.Magenta(cell)).String()
			}
			b.WriteString(cell)
		}
		b.WriteString("\n")
	}
	_, err := fmt.Fprint(w, b.String())
	return err
}

// RenderPolicy writes the greedy action of every taxi position for a fixed passenger and destination
func RenderPolicy(w io.Writer, policy []int, passenger, destination int, color bool) error {
	au := aurora.NewAurora(color)
	arrows := map[Action]string{South: "v", North: "^", East: ">", West: "<", Pickup: "P", Dropoff: "D"}
	var b strings.Builder
	for row := 0; row < Rows; row++ {
		for col := 0; col < Cols; col++ {
			s := State{Taxi: Position{Row: row, Col: col}, Passenger: passenger, Destination: destination}
			a := Action(policy[Encode(s)])
			b.WriteString(au.Cyan(fmt.Sprintf("%2s ", arrows[a])).String())
			b.WriteString(au.White("|").String())
		}
		b.WriteString("\n")
	}
	_, err := fmt.Fprint(w, b.String())
	return err
}
