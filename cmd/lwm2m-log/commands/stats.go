package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/lwm2m-node/lwm2m-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	RequestsByMethod  map[string]int
	ResponsesByCode   map[string]int
	Notifications     int
	ForcedReports     int
	Peers             map[string]*PeerStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// PeerStats holds statistics for one remote address.
type PeerStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}
	printStats(w, collect(events))
	return nil
}

func collect(events []log.Event) *Stats {
	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		RequestsByMethod:  make(map[string]int),
		ResponsesByCode:   make(map[string]int),
		Peers:             make(map[string]*PeerStats),
	}

	for _, event := range events {
		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.RemoteAddr != "" {
			peer, ok := stats.Peers[event.RemoteAddr]
			if !ok {
				peer = &PeerStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
				stats.Peers[event.RemoteAddr] = peer
			}
			peer.Events++
			if event.Timestamp.After(peer.LastSeen) {
				peer.LastSeen = event.Timestamp
			}
		}

		if msg := event.Message; msg != nil {
			switch msg.Type {
			case log.MessageTypeRequest:
				stats.RequestsByMethod[msg.Method.String()]++
			case log.MessageTypeResponse:
				if msg.Code != nil {
					stats.ResponsesByCode[msg.Code.Dotted()]++
				}
			}
		}
		if event.Notification != nil {
			stats.Notifications++
			if event.Notification.Forced {
				stats.ForcedReports++
			}
		}
		if event.Error != nil {
			stats.Errors++
		}
	}
	return stats
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-12s %d\n", k+":", counts[k])
	}
	fmt.Fprintln(w)
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== LWM2M Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	layers := make(map[string]int)
	for l, n := range stats.EventsByLayer {
		layers[l.String()] = n
	}
	printCounts(w, "Events by Layer:", layers)

	categories := make(map[string]int)
	for c, n := range stats.EventsByCategory {
		categories[c.String()] = n
	}
	printCounts(w, "Events by Category:", categories)

	directions := make(map[string]int)
	for d, n := range stats.EventsByDirection {
		directions[d.String()] = n
	}
	printCounts(w, "Events by Direction:", directions)

	printCounts(w, "Requests by Method:", stats.RequestsByMethod)
	printCounts(w, "Responses by Code:", stats.ResponsesByCode)

	if stats.Notifications > 0 {
		fmt.Fprintf(w, "Notifications: %d (%d forced)\n", stats.Notifications, stats.ForcedReports)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Peers: %d\n", len(stats.Peers))
	if len(stats.Peers) > 0 {
		addrs := make([]string, 0, len(stats.Peers))
		for addr := range stats.Peers {
			addrs = append(addrs, addr)
		}
		sort.Slice(addrs, func(i, j int) bool {
			return stats.Peers[addrs[i]].FirstSeen.Before(stats.Peers[addrs[j]].FirstSeen)
		})
		for _, addr := range addrs {
			p := stats.Peers[addr]
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", addr, p.Events,
				p.LastSeen.Sub(p.FirstSeen).Round(time.Millisecond))
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
