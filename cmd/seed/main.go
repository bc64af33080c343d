// Command seed generates a realistic checkout dataset for the TravelGuard
// risk API and writes it to data/seed.json.
//
// Usage:
//
//	go run ./cmd/seed
//
// The generated dataset contains ~120 checkout events with this mix:
//   - ~70% legitimate travellers with consistent location, card and device
//   - ~12% velocity abuse (bursts from the same email or IP)
//   - ~8% geographic and timezone mismatches
//   - ~10% automation (headless browsers, instant form fills, throwaway mailboxes)
//
// Events are written in the order the server should replay them.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"travelguard/antifraud/internal/domain"
)

func main() {
	rng := rand.New(rand.NewSource(42)) // deterministic seed for reproducibility

	var events []domain.Event
	events = append(events, generateTravellers(rng)...)
	events = append(events, generateVelocityAbuse(rng)...)
	events = append(events, generateGeoMismatches(rng)...)
	events = append(events, generateBots(rng)...)

	if err := os.MkdirAll("data", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create("data/seed.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d events → data/seed.json\n", len(events))
}

const (
	chromeUA   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	safariUA   = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"
	firefoxUA  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14.4; rv:125.0) Gecko/20100101 Firefox/125.0"
	headlessUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/124.0.0.0 Safari/537.36"
)

// ─── Legitimate travellers (~85 events) ───────────────────────────────────────

// traveller describes a consistent, legitimate customer.
type traveller struct {
	email    string
	ip       string
	bin      string
	timezone string
	language string
	ua       string
	platform string
	width    int
	height   int
}

var travellers = []traveller{
	{email: "carlos.silva@gmail.com", ip: "177.23.45.12", bin: "453211", timezone: "America/Sao_Paulo", language: "pt-BR", ua: chromeUA, platform: "Win32", width: 1920, height: 1080},
	{email: "sofia.ramirez@hotmail.com", ip: "187.65.12.34", bin: "524571", timezone: "America/Mexico_City", language: "es-MX", ua: safariUA, platform: "iPhone", width: 390, height: 844},
	{email: "diego.moreno@yahoo.com.ar", ip: "200.45.67.89", bin: "516382", timezone: "America/Argentina/Buenos_Aires", language: "es-AR", ua: firefoxUA, platform: "MacIntel", width: 1440, height: 900},
	{email: "ana.garcia@gmail.com", ip: "190.122.33.44", bin: "455231", timezone: "America/Bogota", language: "es-CO", ua: chromeUA, platform: "Win32", width: 1366, height: 768},
	{email: "emma.walsh@outlook.com", ip: "8.8.4.4", bin: "411111", timezone: "America/New_York", language: "en-US", ua: safariUA, platform: "iPhone", width: 430, height: 932},
	{email: "oliver.brown@btinternet.com", ip: "81.2.69.142", bin: "555555", timezone: "Europe/London", language: "en-GB", ua: firefoxUA, platform: "MacIntel", width: 2560, height: 1440},
	{email: "lena.schmidt@web.de", ip: "85.214.132.117", bin: "222222", timezone: "Europe/Berlin", language: "de-DE", ua: chromeUA, platform: "Win32", width: 1920, height: 1200},
}

func generateTravellers(rng *rand.Rand) []domain.Event {
	var events []domain.Event
	for _, t := range travellers {
		// Fewer checkouts than the velocity limit per traveller.
		count := 2 + rng.Intn(2)
		for i := 0; i < count; i++ {
			events = append(events, domain.Event{
				Email:      t.email,
				IP:         t.ip,
				CardPrefix: t.bin,
				UserAgent:  t.ua,
				Timezone:   t.timezone,
				Language:   t.language,
				Device:     device(t.platform, t.width, t.height),
				Behavior:   human(rng),
			})
		}
	}
	return events
}

// ─── Velocity abuse (~14 events) ──────────────────────────────────────────────

func generateVelocityAbuse(rng *rand.Rand) []domain.Event {
	var events []domain.Event

	// Group 1: same email retrying a booking with different cards.
	bins := []string{"453211", "411111", "400000", "524571", "516382", "455231"}
	for _, bin := range bins {
		events = append(events, domain.Event{
			Email:      "last.minute.deal@gmail.com",
			IP:         "201.55.66.77",
			CardPrefix: bin,
			UserAgent:  chromeUA,
			Timezone:   "America/Sao_Paulo",
			Language:   "pt-BR",
			Device:     device("Win32", 1920, 1080),
			Behavior:   human(rng),
		})
	}

	// Group 2: same IP, many accounts booking the same flight.
	for i := 0; i < 8; i++ {
		events = append(events, domain.Event{
			Email:      fmt.Sprintf("booker_%02d@test.com", i),
			IP:         "189.45.123.200",
			CardPrefix: "524571",
			UserAgent:  safariUA,
			Timezone:   "America/Mexico_City",
			Language:   "es-MX",
			Device:     device("iPhone", 390, 844),
			Behavior:   human(rng),
		})
	}
	return events
}

// ─── Geographic mismatches (~10 events) ───────────────────────────────────────

func generateGeoMismatches(rng *rand.Rand) []domain.Event {
	var events []domain.Event

	mismatches := []struct {
		email, ip, bin, timezone, language string
	}{
		// Russian IP paying with a Brazilian card, browser claims Sao Paulo.
		{email: "buyer1@proton.me", ip: "185.100.87.12", bin: "453211", timezone: "America/Sao_Paulo", language: "pt-BR"},
		// Nigerian IP paying with a Mexican card.
		{email: "shopper99@webmail.com", ip: "196.216.2.5", bin: "524571", timezone: "America/Mexico_City", language: "es-MX"},
		// Chinese IP paying with an Argentine card.
		{email: "traveller_cn@outlook.com", ip: "112.77.11.22", bin: "516382", timezone: "Asia/Shanghai", language: "zh-CN"},
		// Ukrainian IP with a Colombian card and a Bogota clock.
		{email: "vitali_k@inbox.ua", ip: "91.200.12.33", bin: "455231", timezone: "America/Bogota", language: "es-CO"},
		// US card, UK IP, Tokyo clock.
		{email: "jet.setter@icloud.com", ip: "81.2.69.160", bin: "411111", timezone: "Asia/Tokyo", language: "en-US"},
	}

	for _, m := range mismatches {
		for j := 0; j < 2; j++ {
			events = append(events, domain.Event{
				Email:      m.email,
				IP:         m.ip,
				CardPrefix: m.bin,
				UserAgent:  chromeUA,
				Timezone:   m.timezone,
				Language:   m.language,
				Device:     device("Win32", 1920, 1080),
				Behavior:   human(rng),
			})
		}
	}
	return events
}

// ─── Automation (~12 events) ──────────────────────────────────────────────────

// generateBots creates checkouts with textbook automation patterns: headless
// user agents, sub-second sessions, no pointer movement and throwaway mailboxes.
func generateBots(rng *rand.Rand) []domain.Event {
	var events []domain.Event

	// Headless browser scripted through a card list.
	for i := 0; i < 4; i++ {
		events = append(events, domain.Event{
			Email:      fmt.Sprintf("ticket_bot_%d@mailinator.com", i),
			IP:         "185.220.101.5",
			CardPrefix: "400000",
			UserAgent:  headlessUA,
			Timezone:   "UTC",
			Language:   "en-US",
			Device:     device("Linux x86_64", 800, 600),
			Behavior:   bot(rng),
		})
	}

	// Autofill scripts with a normal user agent.
	for i := 0; i < 4; i++ {
		events = append(events, domain.Event{
			Email:      fmt.Sprintf("fast.fill%d@yopmail.com", i),
			IP:         "103.91.92.200",
			CardPrefix: "555555",
			UserAgent:  chromeUA,
			Timezone:   "Europe/London",
			Language:   "en-GB",
			Device:     device("Win32", 1920, 1080),
			Behavior:   bot(rng),
		})
	}

	// Random-looking mailboxes sharing one device.
	for i := 0; i < 4; i++ {
		events = append(events, domain.Event{
			Email:      fmt.Sprintf("xk%04dqz%d@gmail.com", rng.Intn(10000), i),
			IP:         fmt.Sprintf("196.216.2.%d", 100+i),
			CardPrefix: "411111",
			UserAgent:  "python-requests/2.31",
			Timezone:   "America/New_York",
			Language:   "en-US",
			Device:     device("Linux x86_64", 0, 0),
			Behavior:   bot(rng),
		})
	}
	return events
}

// ─── Utilities ────────────────────────────────────────────────────────────────

func device(platform string, width, height int) map[string]any {
	return map[string]any{
		"platform": platform,
		"screen":   map[string]any{"width": width, "height": height},
	}
}

// human returns behaviour metrics of a person filling a checkout form.
func human(rng *rand.Rand) domain.Behavior {
	return domain.Behavior{
		SessionDurationMS:  domain.Int(45_000 + rng.Intn(240_000)),
		TypingIntervalMS:   domain.Int(120 + rng.Intn(150)),
		PointerMoves:       domain.Int(40 + rng.Intn(300)),
		FirstInteractionMS: domain.Int(1_500 + rng.Intn(6_000)),
	}
}

// bot returns behaviour metrics of a script.
func bot(rng *rand.Rand) domain.Behavior {
	return domain.Behavior{
		SessionDurationMS:  domain.Int(300 + rng.Intn(1_500)),
		TypingIntervalMS:   domain.Int(rng.Intn(15)),
		PointerMoves:       domain.Int(0),
		FirstInteractionMS: domain.Int(20 + rng.Intn(80)),
	}
}
