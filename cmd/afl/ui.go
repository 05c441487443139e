package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"agentflow/internal/game"
	"agentflow/internal/session"
	"agentflow/internal/sim"
	"agentflow/internal/store"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type catalogPayload struct {
	Agents     []game.AgentDef        `json:"agents"`
	Actions    []game.ManualActionDef `json:"actions"`
	StoreItems []game.StoreItem       `json:"store_items"`
}

type leaderboardPayload struct {
	Entries []store.Entry `json:"entries"`
}

type clickPayload struct {
	Result game.ManualResult `json:"result"`
	View   session.View      `json:"view"`
}

type purchasePayload struct {
	Purchase game.Purchase `json:"purchase"`
	View     session.View  `json:"view"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptConfirm(label string) (bool, error) {
	fmt.Printf("%s [y/N]: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func renderState(raw map[string]any) error {
	view, err := decodeInto[session.View](raw)
	if err != nil {
		return err
	}
	s := view.State
	if s == nil {
		return fmt.Errorf("empty state in response")
	}
	accent.Printf("\n== %s ==\n", strings.ToUpper(s.Meta.Status))
	fmt.Printf("Capital      %s\n", money(s.Resources.Capital))
	fmt.Printf("Per second   %s\n", money(view.PPS))
	fmt.Printf("Valuation    %s\n", money(view.Valuation))
	fmt.Printf("Stress       %s\n", stressBar(s.Resources.Stress))
	fmt.Printf("Automation   %.0f%%\n", view.Automation*100)
	fmt.Printf("Regime       %s\n", view.Regime.ID)
	if s.Meta.PrestigeLevel > 0 {
		fmt.Printf("Prestige     level %d (x%.2f)\n", s.Meta.PrestigeLevel, game.PrestigeMultiplier(s.Meta.PrestigeLevel))
	}
	if s.Meta.IsCrashed {
		left := time.Until(time.UnixMilli(s.Meta.CrashEndTime)).Round(time.Second)
		danger.Printf("BURNOUT      back online in %s\n", left)
	}
	if view.CanPrestige {
		success.Println("Prestige available: run `afl prestige`.")
	}

	if len(s.Inventory) > 0 {
		fmt.Printf("\n%-24s %6s %14s\n", "AGENT", "OWNED", "NEXT COST")
		inv := append([]game.Ownership(nil), s.Inventory...)
		sort.Slice(inv, func(i, j int) bool { return inv[i].ID < inv[j].ID })
		for _, o := range inv {
			fmt.Printf("%-24s %6d %14s\n", truncate(o.ID, 24), o.Quantity, money(view.NextCosts[o.ID]))
		}
	}
	fmt.Println()
	return nil
}

func renderCatalog(raw map[string]any) error {
	out, err := decodeInto[catalogPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== AGENTS ==")
	fmt.Printf("%-24s %12s %10s %14s\n", "ID", "BASE COST", "YIELD/S", "UNLOCK AT")
	for _, a := range out.Agents {
		fmt.Printf("%-24s %12s %10s %14s\n", truncate(a.ID, 24), money(a.BaseCost), humanize.FtoaWithDigits(a.YieldPerSecond, 2), money(a.UnlockAt))
	}
	accent.Println("\n== MANUAL ACTIONS ==")
	fmt.Printf("%-24s %8s %8s %-24s\n", "ID", "GAIN", "STRESS", "AUTOMATED BY")
	for _, a := range out.Actions {
		fmt.Printf("%-24s %8s %8s %-24s\n", truncate(a.ID, 24), humanize.Ftoa(a.BaseGain), humanize.Ftoa(a.StressCost), a.DisabledBy)
	}
	accent.Println("\n== STORE ==")
	for _, it := range out.StoreItems {
		fmt.Printf("%-26s %5d stars  %s\n", truncate(it.ID, 26), it.PriceStars, it.Description)
	}
	fmt.Println()
	return nil
}

func renderClick(raw map[string]any) error {
	out, err := decodeInto[clickPayload](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("+%s capital", money(out.Result.Gain)))
	fmt.Printf("Stress %s\n", stressBar(out.Result.Stress))
	return nil
}

func renderPurchase(raw map[string]any) error {
	out, err := decodeInto[purchasePayload](raw)
	if err != nil {
		return err
	}
	p := out.Purchase
	printSuccess(fmt.Sprintf("Hired %s #%d for %s.", p.AgentID, p.Quantity, money(p.Cost)))
	fmt.Printf("Next unit costs %s. Income now %s/s.\n", money(p.NextCost), money(out.View.PPS))
	return nil
}

func renderLeaderboard(raw map[string]any) error {
	out, err := decodeInto[leaderboardPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== LEADERBOARD ==")
	if len(out.Entries) == 0 {
		printInfo("No companies ranked yet.")
		return nil
	}
	fmt.Printf("%-6s %-22s %16s %9s %14s\n", "RANK", "FOUNDER", "VALUATION", "PRESTIGE", "UPDATED")
	for _, e := range out.Entries {
		fmt.Printf("%-6d %-22s %16s %9d %14s\n",
			e.Rank,
			truncate(e.Name, 22),
			money(e.Valuation),
			e.PrestigeLevel,
			humanize.Time(e.UpdatedAt),
		)
	}
	fmt.Println()
	return nil
}

func renderSimReport(rep sim.Report) error {
	s := rep.Final
	accent.Printf("\n== SIMULATION (%s) ==\n", rep.Elapsed)
	fmt.Printf("Status       %s\n", s.Meta.Status)
	fmt.Printf("Valuation    %s\n", money(rep.Valuation))
	fmt.Printf("Per second   %s\n", money(rep.PPS))
	fmt.Printf("Total earned %s\n", money(s.Meta.CapitalTotal))
	fmt.Printf("Clicks       %s\n", humanize.Comma(int64(rep.Clicks)))
	fmt.Printf("Hires        %s\n", humanize.Comma(int64(rep.Purchases)))
	fmt.Printf("Prestiges    %d\n", rep.Prestiges)

	if len(rep.Timeline) > 0 {
		accent.Println("\nMilestones")
		for _, m := range rep.Timeline {
			fmt.Printf("  %-10s %s\n", m.At, m.Status)
		}
	}
	if len(rep.Events) > 0 {
		accent.Println("\nEvents")
		kinds := make([]string, 0, len(rep.Events))
		for k := range rep.Events {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Printf("  %-24s %d\n", k, rep.Events[game.EventKind(k)])
		}
	}
	fmt.Println()
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func money(v float64) string {
	if v >= 1_000_000 {
		n, unit := humanize.ComputeSI(v)
		return "$" + humanize.FtoaWithDigits(n, 2) + unit
	}
	return "$" + humanize.Commaf(float64(int64(v)))
}

func stressBar(v float64) string {
	const width = 20
	filled := int(v / game.StressMax * width)
	filled = min(max(filled, 0), width)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
	text := fmt.Sprintf("[%s] %.0f", bar, v)
	switch {
	case v >= game.StressCritical:
		return danger.Sprint(text)
	case v >= 50:
		return warn.Sprint(text)
	default:
		return success.Sprint(text)
	}
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
