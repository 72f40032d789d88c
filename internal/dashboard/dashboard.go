// Package dashboard renders a live terminal UI for probe runs.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/bidprobe/bidprobe/internal/metrics"
)

// RunConfig holds probe configuration parameters for display.
type RunConfig struct {
	TargetURL    string        // Bid endpoint URL
	MaxInFlight  int           // Concurrent dispatch bound
	Duration     time.Duration // Run duration (0 = unlimited)
	Total        int           // Total requests to send (0 = unlimited)
	Rate         int           // Target QPS (0 = unthrottled)
	Timeout      time.Duration // Request timeout
	ArrivalModel string        // uniform or poisson
	ConfigFile   string        // Path to config file if used
}

// Dashboard renders live probe metrics in the terminal.
type Dashboard struct {
	collector    *metrics.Collector
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	qpsSparkle     *widgets.SparklineGroup
	processingPara *widgets.Paragraph
	qpsGauge       *widgets.Gauge
	statusList     *widgets.List
	transportList  *widgets.List
	summaryPara    *widgets.Paragraph
	categoryPara   *widgets.Paragraph
	qpsHistory     []float64
	lastTotal      int64
	lastSampleTime time.Time
	startTime      time.Time
	probeDuration  time.Duration
	runConfig      RunConfig
}

// New creates a new Dashboard.
func New(collector *metrics.Collector, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		collector:      collector,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		qpsHistory:     make([]float64, 0, 100),
		startTime:      time.Now(),
		lastSampleTime: time.Now(),
		runConfig:      cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "QPS"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.qpsSparkle = widgets.NewSparklineGroup(sparkline)
	d.qpsSparkle.Title = "Dispatch Rate"
	d.qpsSparkle.BorderStyle.Fg = ui.ColorCyan

	d.processingPara = widgets.NewParagraph()
	d.processingPara.Title = "Reported Processing Time"
	d.processingPara.Text = "No samples yet"
	d.processingPara.BorderStyle.Fg = ui.ColorCyan

	d.qpsGauge = widgets.NewGauge()
	d.qpsGauge.Title = "Target Rate"
	d.qpsGauge.Percent = 0
	d.qpsGauge.BarColor = ui.ColorBlue
	d.qpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.qpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.statusList = widgets.NewList()
	d.statusList.Title = "Status Codes"
	d.statusList.Rows = []string{"Awaiting data"}
	d.statusList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.statusList.BorderStyle.Fg = ui.ColorCyan

	d.transportList = widgets.NewList()
	d.transportList.Title = "Transport Failures"
	d.transportList.Rows = []string{"None"}
	d.transportList.TextStyle = ui.NewStyle(ui.ColorRed)
	d.transportList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Probe Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.categoryPara = widgets.NewParagraph()
	d.categoryPara.Title = "Outcome Categories"
	d.categoryPara.Text = "Waiting for data..."
	d.categoryPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.20,
			ui.NewCol(0.5, d.qpsGauge),
			ui.NewCol(0.5, d.categoryPara),
		),
		ui.NewRow(0.32,
			ui.NewCol(0.65, d.qpsSparkle),
			ui.NewCol(0.35, d.processingPara),
		),
		ui.NewRow(0.32,
			ui.NewCol(0.5, d.statusList),
			ui.NewCol(0.5, d.transportList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and cleans up.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	d.probeDuration = time.Since(d.startTime)
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// GetFinalStats returns the final statistics after the dashboard has stopped.
func (d *Dashboard) GetFinalStats() metrics.Stats {
	return d.collector.Stats(d.probeDuration)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			// Drain any remaining events
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Do not return here; wait for Stop() to cancel context
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the collector.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(d.startTime)
	stats := d.collector.Stats(elapsed)

	// Instantaneous QPS over the last tick for the sparkline.
	window := now.Sub(d.lastSampleTime).Seconds()
	instant := 0.0
	if window > 0 {
		instant = float64(stats.Total-d.lastTotal) / window
	}
	d.lastTotal = stats.Total
	d.lastSampleTime = now

	d.qpsHistory = append(d.qpsHistory, instant)
	if len(d.qpsHistory) > 100 {
		d.qpsHistory = d.qpsHistory[1:]
	}
	d.qpsSparkle.Sparklines[0].Data = d.qpsHistory
	d.qpsSparkle.Title = fmt.Sprintf("Dispatch Rate | Now: %.1f | Avg: %.1f", instant, stats.RequestsPerSec)

	gaugePercent := 0
	if d.runConfig.Rate > 0 {
		gaugePercent = int(stats.RequestsPerSec / float64(d.runConfig.Rate) * 100)
		if gaugePercent > 100 {
			gaugePercent = 100
		}
	}
	d.qpsGauge.Percent = gaugePercent
	d.qpsGauge.Label = fmt.Sprintf("%.1f / %d QPS", stats.RequestsPerSec, d.runConfig.Rate)

	goodRate := 0.0
	if stats.Total > 0 {
		goodRate = (float64(stats.Good) / float64(stats.Total)) * 100
	}

	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s\n%s\nElapsed: %s | Sent: %d | Good Rate: %.1f%%",
		d.runConfig.TargetURL,
		d.formatRunParams(),
		elapsed.Round(time.Second),
		stats.Total,
		goodRate,
	)

	d.categoryPara.Text = fmt.Sprintf(
		"Good:         %d\nErrors:       %d\nInvalid:      %d\nProblematic:  %d\nBids:         %d\nNo-Bids:      %d",
		stats.Good,
		stats.Errors,
		stats.Invalid,
		stats.Problematic,
		stats.BidResponses,
		stats.NoBids,
	)

	if stats.ProcessingSamples > 0 {
		d.processingPara.Text = fmt.Sprintf(
			"Samples: %d\nMean: %.1fms\nP50:  %.0fms\nP90:  %.0fms\nP99:  %.0fms\nMax:  %.0fms",
			stats.ProcessingSamples,
			stats.MeanProcessingMs,
			stats.P50ProcessingMs,
			stats.P90ProcessingMs,
			stats.P99ProcessingMs,
			stats.MaxProcessingMs,
		)
	}

	d.statusList.Rows = formatStatusRows(stats.StatusCodes)
	d.transportList.Rows = formatTransportRows(stats.TransportFails)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func formatStatusRows(codes map[int]int64) []string {
	rows := metrics.FlattenStatusBuckets(codes)
	if len(rows) == 0 {
		return []string{"[Awaiting data](fg:green)"}
	}
	maxRows := len(rows)
	if maxRows > 10 {
		maxRows = 10
	}
	formatted := make([]string, 0, maxRows)
	for i := 0; i < maxRows; i++ {
		row := rows[i]
		color := "green"
		if row.Code != 200 {
			color = "red"
		}
		formatted = append(formatted, fmt.Sprintf("[HTTP %d](fg:%s) %d", row.Code, color, row.Count))
	}
	return formatted
}

func formatTransportRows(fails map[string]int) []string {
	if len(fails) == 0 {
		return []string{"[None](fg:green)"}
	}
	types := make([]string, 0, len(fails))
	for t := range fails {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if fails[types[i]] == fails[types[j]] {
			return types[i] < types[j]
		}
		return fails[types[i]] > fails[types[j]]
	})
	formatted := make([]string, 0, len(types))
	for _, t := range types {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", metrics.FriendlyErrorName(t), fails[t]))
	}
	return formatted
}

// formatRunParams formats the probe configuration for display.
func (d *Dashboard) formatRunParams() string {
	var parts []string

	if d.runConfig.ArrivalModel != "" && d.runConfig.ArrivalModel != "uniform" {
		parts = append(parts, fmt.Sprintf("Arrival: %s", d.runConfig.ArrivalModel))
	}
	if d.runConfig.MaxInFlight > 0 {
		parts = append(parts, fmt.Sprintf("In-flight: %d", d.runConfig.MaxInFlight))
	}
	if d.runConfig.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/s", d.runConfig.Rate))
	} else {
		parts = append(parts, "Rate: unthrottled")
	}
	if d.runConfig.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", d.runConfig.Duration))
	}
	if d.runConfig.Total > 0 {
		parts = append(parts, fmt.Sprintf("Total: %d", d.runConfig.Total))
	}
	if d.runConfig.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", d.runConfig.Timeout))
	}
	if d.runConfig.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.runConfig.ConfigFile))
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " | ")
}
