package types

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/zeu5/taxi-rl/rl"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Generic Dataset that contains information after processing the episodes
type DataSet interface{}

// Series is one value per training episode
type Series []float64

// Analyzer compresses the episode statistics of an experiment to a DataSet
type Analyzer interface {
	// Run, experiment, statistics of one episode
	Analyze(int, string, *rl.EpisodeStats)
	// Resulting dataset
	DataSet() DataSet
	// Reset the analyzer
	Reset()
}

// Comparator differentiates between different datasets with associated names
// run, experiment names, datasets
type Comparator func(int, []string, []DataSet) error

func NoopComparator() Comparator {
	return func(int, []string, []DataSet) error { return nil }
}

type seriesAnalyzer struct {
	value  func(*rl.EpisodeStats) float64
	values Series
}

func (s *seriesAnalyzer) Analyze(_ int, _ string, stats *rl.EpisodeStats) {
	s.values = append(s.values, s.value(stats))
}

func (s *seriesAnalyzer) DataSet() DataSet {
	out := make(Series, len(s.values))
	copy(out, s.values)
	return out
}

func (s *seriesAnalyzer) Reset() {
	s.values = make(Series, 0)
}

// EpisodeLength records the number of steps of each episode
func EpisodeLength() Analyzer {
	return &seriesAnalyzer{value: func(s *rl.EpisodeStats) float64 { return float64(s.Steps) }}
}

// Penalties records the number of penalised transitions of each episode
func Penalties() Analyzer {
	return &seriesAnalyzer{value: func(s *rl.EpisodeStats) float64 { return float64(s.Penalties) }}
}

// Reward records the cumulative reward of each episode
func Reward() Analyzer {
	return &seriesAnalyzer{value: func(s *rl.EpisodeStats) float64 { return s.Reward }}
}

var errNotSeries = errors.New("dataset is not a series")

func toSeries(ds []DataSet) ([]Series, error) {
	out := make([]Series, len(ds))
	for i, d := range ds {
		s, ok := d.(Series)
		if !ok {
			return nil, fmt.Errorf("%w: %T", errNotSeries, d)
		}
		out[i] = s
	}
	return out, nil
}

// Smooth averages the series over consecutive windows of the given size
func Smooth(s Series, window int) Series {
	if window <= 1 {
		return s
	}
	out := make(Series, 0, len(s)/window+1)
	for i := 0; i < len(s); i += window {
		end := i + window
		if end > len(s) {
			end = len(s)
		}
		out = append(out, stat.Mean(s[i:end], nil))
	}
	return out
}

// PlotComparator saves a png line plot per run, one line per experiment, averaged over window episodes
func PlotComparator(plotPath, name, yLabel string, window int) Comparator {
	if _, err := os.Stat(plotPath); err != nil {
		os.MkdirAll(plotPath, os.ModePerm)
	}
	if window < 1 {
		window = 1
	}
	return func(run int, names []string, ds []DataSet) error {
		series, err := toSeries(ds)
		if err != nil {
			return err
		}
		p := plot.New()
		p.Title.Text = "Comparison"
		p.X.Label.Text = "Episode"
		p.Y.Label.Text = yLabel
		for i := 0; i < len(names); i++ {
			smoothed := Smooth(series[i], window)
			points := make(plotter.XYs, len(smoothed))
			for j, v := range smoothed {
				points[j] = plotter.XY{
					X: float64(j * window),
					Y: v,
				}
			}
			line, err := plotter.NewLine(points)
			if err != nil {
				continue
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
			p.Legend.Add(names[i], line)
		}
		return p.Save(8*vg.Inch, 8*vg.Inch, path.Join(plotPath, strconv.Itoa(run)+"_"+name+".png"))
	}
}

// EChartsComparator renders an interactive html line chart per run
func EChartsComparator(chartPath, name, title string, window int) Comparator {
	if _, err := os.Stat(chartPath); err != nil {
		os.MkdirAll(chartPath, os.ModePerm)
	}
	if window < 1 {
		window = 1
	}
	return func(run int, names []string, ds []DataSet) error {
		series, err := toSeries(ds)
		if err != nil {
			return err
		}
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title:    title,
				Subtitle: fmt.Sprintf("run %d, mean over %d episodes", run+1, window),
			}),
			charts.WithInitializationOpts(opts.Initialization{
				Theme: "shine",
			}),
		)

		longest := 0
		smoothed := make([]Series, len(series))
		for i, s := range series {
			smoothed[i] = Smooth(s, window)
			if len(smoothed[i]) > longest {
				longest = len(smoothed[i])
			}
		}
		var steps []string
		for i := 0; i < longest; i++ {
			steps = append(steps, strconv.Itoa(i*window))
		}
		line = line.SetXAxis(steps)
		for i, s := range smoothed {
			items := make([]opts.LineData, 0, len(s))
			for _, v := range s {
				items = append(items, opts.LineData{Value: v})
			}
			line.AddSeries(names[i], items)
		}

		page := components.NewPage()
		page.AddCharts(line)
		f, err := os.Create(path.Join(chartPath, strconv.Itoa(run)+"_"+name+".html"))
		if err != nil {
			return err
		}
		defer f.Close()
		return page.Render(f)
	}
}

// SummaryComparator prints the mean and standard deviation over the last episodes of each experiment
func SummaryComparator(w io.Writer, label string, last int) Comparator {
	return func(run int, names []string, ds []DataSet) error {
		series, err := toSeries(ds)
		if err != nil {
			return err
		}
		for i, s := range series {
			if last > 0 && len(s) > last {
				s = s[len(s)-last:]
			}
			if len(s) == 0 {
				fmt.Fprintf(w, "Run %d, %s: no episodes\n", run+1, names[i])
				continue
			}
			mean, std := stat.MeanStdDev(s, nil)
			fmt.Fprintf(w, "Run %d, %s: %s mean %.3f stddev %.3f over %d episodes\n", run+1, names[i], label, mean, std, len(s))
		}
		return nil
	}
}
