package expr

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FakeRegistry backs faker.*/fake.* tokens (§4.1). No faker library appears
// anywhere in the retrieved corpus, so generators are hand-rolled on
// math/rand and google/uuid (already pulled in for run IDs, runmodel.NewRun)
// rather than inventing a dependency nothing in the examples reaches for.
type FakeRegistry struct {
	mu   sync.Mutex
	rng  *rand.Rand
	gens map[string]func() string
}

// NewFakeRegistry builds the default generator set. §6 "Fake-data generator
// seed is not configurable; generators are nondeterministic" — seed off the
// wall clock rather than a fixed constant so repeated runs don't replay the
// same fake values.
func NewFakeRegistry() *FakeRegistry {
	r := &FakeRegistry{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	r.gens = map[string]func() string{
		"uuid":        func() string { return uuid.New().String() },
		"name":        r.name,
		"first_name":  r.firstName,
		"last_name":   r.lastName,
		"email":       r.email,
		"username":    r.username,
		"word":        r.word,
		"sentence":    r.sentence,
		"number":      func() string { return strconv.Itoa(r.intn(1, 1000)) },
		"boolean":     func() string { return strconv.FormatBool(r.rng.Intn(2) == 1) },
		"phone":       r.phone,
		"url":         r.url,
		"ip":          r.ip,
		"date":        r.date,
		"color":       r.color,
		"city":        r.city,
		"country":     r.country,
		"alphanumeric": r.alphanumeric,
	}
	return r
}

// Generate produces a value for name, which may also carry parameters in
// "name(arg)" form (e.g. "alphanumeric(12)"); unknown names are an error so
// that a typo'd faker.* token fails loudly in the call-site onWarn callback
// rather than silently resolving to "".
func (r *FakeRegistry) Generate(name string) (string, error) {
	base, arg := splitCall(name)
	r.mu.Lock()
	defer r.mu.Unlock()

	if base == "alphanumeric" {
		n := 8
		if arg != "" {
			if parsed, err := strconv.Atoi(arg); err == nil {
				n = parsed
			}
		}
		return r.alphanumericN(n), nil
	}

	gen, ok := r.gens[base]
	if !ok {
		return "", fmt.Errorf("unknown fake generator %q", base)
	}
	return gen(), nil
}

func splitCall(name string) (base, arg string) {
	open := strings.Index(name, "(")
	if open == -1 || !strings.HasSuffix(name, ")") {
		return name, ""
	}
	return name[:open], name[open+1 : len(name)-1]
}

func (r *FakeRegistry) intn(min, max int) int { return min + r.rng.Intn(max-min+1) }

var firstNames = []string{"Ava", "Liam", "Noah", "Emma", "Oliver", "Mia", "Lucas", "Sofia", "Ethan", "Zoe"}
var lastNames = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Lopez", "Wilson"}
var words = []string{"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing", "elit"}
var colors = []string{"red", "blue", "green", "black", "white", "silver", "amber", "violet"}
var cities = []string{"Springfield", "Riverside", "Fairview", "Georgetown", "Madison", "Arlington"}
var countries = []string{"Wakanda", "Genovia", "Elbonia", "Freedonia", "Ruritania"}

func (r *FakeRegistry) firstName() string { return firstNames[r.rng.Intn(len(firstNames))] }
func (r *FakeRegistry) lastName() string  { return lastNames[r.rng.Intn(len(lastNames))] }
func (r *FakeRegistry) name() string      { return r.firstName() + " " + r.lastName() }

func (r *FakeRegistry) username() string {
	return strings.ToLower(r.firstName() + strconv.Itoa(r.intn(1, 999)))
}

func (r *FakeRegistry) email() string {
	return strings.ToLower(r.firstName()+"."+r.lastName()) + "@example.com"
}

func (r *FakeRegistry) word() string { return words[r.rng.Intn(len(words))] }

func (r *FakeRegistry) sentence() string {
	n := r.intn(4, 8)
	parts := make([]string, n)
	for i := range parts {
		parts[i] = r.word()
	}
	s := strings.Join(parts, " ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

func (r *FakeRegistry) phone() string {
	return fmt.Sprintf("+1-%03d-%03d-%04d", r.intn(200, 999), r.intn(200, 999), r.intn(0, 9999))
}

func (r *FakeRegistry) url() string {
	return "https://" + r.word() + "." + r.word() + ".example.com"
}

func (r *FakeRegistry) ip() string {
	return fmt.Sprintf("%d.%d.%d.%d", r.intn(1, 254), r.intn(0, 255), r.intn(0, 255), r.intn(1, 254))
}

func (r *FakeRegistry) date() string {
	year := r.intn(2015, 2025)
	month := r.intn(1, 12)
	day := r.intn(1, 28)
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

func (r *FakeRegistry) color() string   { return colors[r.rng.Intn(len(colors))] }
func (r *FakeRegistry) city() string    { return cities[r.rng.Intn(len(cities))] }
func (r *FakeRegistry) country() string { return countries[r.rng.Intn(len(countries))] }

const alphanumericAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func (r *FakeRegistry) alphanumeric() string { return r.alphanumericN(8) }

func (r *FakeRegistry) alphanumericN(n int) string {
	if n <= 0 {
		n = 8
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumericAlphabet[r.rng.Intn(len(alphanumericAlphabet))]
	}
	return string(b)
}
