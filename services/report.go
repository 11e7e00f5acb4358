package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"imobot/models"
	"imobot/utils"
)

// LogSummary writes one line per target and the cycle total.
func LogSummary(logger *utils.Logger, s *models.CycleSummary) {
	sep := strings.Repeat("=", 50)
	logger.Info(sep)
	logger.Info("FINAL CHECK REPORT (cycle %s)", s.ID)
	for _, r := range s.Results {
		if r.Status == models.StatusOK {
			logger.Info("✅ %s - found: %d (new: %d)", r.URL, r.FoundCount, r.NewCount)
			continue
		}
		logger.Info("❌ %s - %s: %s", r.URL, r.Status, r.Error)
	}
	logger.Info(sep)
	logger.Info("Cycle complete in %v. %d new listings in total (%d ok, %d blocked, %d failed).",
		s.FinishedAt.Sub(s.StartedAt).Round(time.Second), s.TotalNew,
		s.Count(models.StatusOK), s.Count(models.StatusBlocked), s.Count(models.StatusFailed))
	logger.Info("Unique listings above the price floor: %d | browser restarts: %d", s.Unique, s.Restarts)
}

// ListingInsights describes one page worth of extracted records.
type ListingInsights struct {
	Total         int
	Priced        int
	AboveMinimum  int
	MinPrice      int64
	MaxPrice      int64
	AveragePrice  int64
	MostExpensive *models.Listing
	BySite        map[string]int
}

// Summarize computes price statistics over records. Records without a
// numeric price are counted but left out of the price figures.
func Summarize(records []*models.Listing, minPrice int64) *ListingInsights {
	r := &ListingInsights{BySite: make(map[string]int)}
	r.Total = len(records)

	var total int64
	for _, l := range records {
		r.BySite[l.Site]++

		p := NormalizePrice(l.Price)
		if p <= 0 {
			continue
		}
		if p >= minPrice {
			r.AboveMinimum++
		}
		if r.Priced == 0 || p < r.MinPrice {
			r.MinPrice = p
		}
		if p > r.MaxPrice {
			r.MaxPrice = p
			r.MostExpensive = l
		}
		total += p
		r.Priced++
	}
	if r.Priced > 0 {
		r.AveragePrice = total / int64(r.Priced)
	}
	return r
}

// PrintListings renders records and their insights as a terminal report.
func PrintListings(w io.Writer, extractor string, records []*models.Listing, minPrice int64) {
	r := Summarize(records, minPrice)
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🏠 EXTRACTION REPORT (%s)\033[0m\n", extractor)
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Records extracted      : \033[1m%d\033[0m\n", r.Total)
	fmt.Fprintf(w, "  With a numeric price   : \033[1m%d\033[0m\n", r.Priced)
	fmt.Fprintf(w, "  At or above %-10d : \033[1m%d\033[0m\n", minPrice, r.AboveMinimum)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.Priced > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m%d €\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m%d €\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m%d €\033[0m\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.Title, 50))
		fmt.Fprintf(w, "  Price : \033[1;31m%s\033[0m\n", r.MostExpensive.Price)
		fmt.Fprintf(w, "  URL   : %s\n", r.MostExpensive.URL)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Records\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(records) == 0 {
		fmt.Fprintf(w, "  No records found\n")
	}
	for i, l := range records {
		mark := "\033[1;32m✔\033[0m"
		if NormalizePrice(l.Price) < minPrice {
			mark = "\033[1;31m✘\033[0m"
		}
		fmt.Fprintf(w, "  %s \033[1m%d.\033[0m %-40s %s\n", mark, i+1, truncate(l.Title, 38), l.Price)
		fmt.Fprintf(w, "       id=%s %s\n", l.ID, l.URL)
	}
	fmt.Fprintln(w)

	if len(r.BySite) > 1 {
		fmt.Fprintf(w, "\033[1;33m  Records by Site\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		type siteCount struct {
			site  string
			count int
		}
		var sites []siteCount
		for site, cnt := range r.BySite {
			sites = append(sites, siteCount{site, cnt})
		}
		sort.Slice(sites, func(i, j int) bool {
			return sites[i].count > sites[j].count
		})
		for _, sc := range sites {
			bar := strings.Repeat("█", sc.count)
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(sc.site, 28), bar, sc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
