package geocode

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Result is one successful geocode: a formatted address, coordinates,
// and a 1-5 accuracy level (rooftop=5 down to unknown=1).
type Result struct {
	Address   string
	Latitude  string
	Longitude string
	Accuracy  int
}

// Cache is the durable query cache. Each line holds one lookup:
//
//	normalizedQuery|address;latitude;longitude;accuracy
//
// A negative lookup (place does not exist) keeps the bar but has an
// empty right-hand side. The file is loaded once at Open and appended
// to as new answers arrive.
type Cache struct {
	path    string
	fh      *os.File
	entries map[string]*Result
}

// OpenCache loads the cache file, creating it if absent. Unparseable
// lines are skipped.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[string]*Result)}

	if fh, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(fh)
		for scanner.Scan() {
			key, res, ok := parseCacheLine(scanner.Text())
			if !ok {
				continue
			}
			c.entries[key] = res
		}
		scanErr := scanner.Err()
		fh.Close()
		if scanErr != nil {
			return nil, fmt.Errorf("load geocode cache %s: %w", path, scanErr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open geocode cache %s: %w", path, err)
	}

	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open geocode cache %s for append: %w", path, err)
	}
	c.fh = fh
	return c, nil
}

// Close releases the backing file.
func (c *Cache) Close() error {
	return c.fh.Close()
}

// Lookup consults the cache under the normalized query. A hit with a
// nil Result is a cached negative.
func (c *Cache) Lookup(query string) (*Result, bool) {
	res, ok := c.entries[NormalizeQuery(query)]
	return res, ok
}

// Store records an answer, nil for a definitive negative, and appends
// it to the cache file.
func (c *Cache) Store(query string, res *Result) error {
	line := filterDelimiters(query) + "|"
	if res != nil {
		line += strings.Join([]string{
			filterDelimiters(res.Address),
			res.Latitude,
			res.Longitude,
			strconv.Itoa(res.Accuracy),
		}, ";")
	}
	c.entries[NormalizeQuery(query)] = res
	if _, err := c.fh.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append geocode cache: %w", err)
	}
	return nil
}

// Len reports the number of cached lookups, positive and negative.
func (c *Cache) Len() int {
	return len(c.entries)
}

func parseCacheLine(line string) (key string, res *Result, ok bool) {
	raw, value, found := strings.Cut(strings.TrimSpace(line), "|")
	if !found {
		return "", nil, false
	}
	key = NormalizeQuery(raw)
	if key == "" {
		return "", nil, false
	}
	if !strings.Contains(value, ";") {
		// negative entry
		return key, nil, true
	}
	parts := strings.Split(value, ";")
	if len(parts) != 4 {
		return "", nil, false
	}
	acc, err := strconv.Atoi(parts[3])
	if err != nil {
		acc = 1
	}
	return key, &Result{
		Address:   parts[0],
		Latitude:  parts[1],
		Longitude: parts[2],
		Accuracy:  acc,
	}, true
}
