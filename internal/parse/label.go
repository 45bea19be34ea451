package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberRe = regexp.MustCompile(`-(\d+)\s*$`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// ParsedLabel holds the structured data of a scanned location label.
type ParsedLabel struct {
	Device string
	Drawer string
	Number int
}

// ParseLocationLabel splits a printed label such as "CSR-1 B3-12" or "T01#D2" into
// device, drawer and location number. The number is 0 when the label names a whole drawer.
func ParseLocationLabel(raw string) (ParsedLabel, error) {
	// '#' separates device and drawer on older labels
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "#", " ")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))

	fields := strings.Split(s, " ")
	if len(fields) < 2 {
		return ParsedLabel{}, fmt.Errorf("unable to parse label %q: missing drawer", raw)
	}
	device := strings.Join(fields[:len(fields)-1], " ")
	drawer := fields[len(fields)-1]

	number := 0
	if loc := numberRe.FindStringSubmatchIndex(drawer); loc != nil {
		n, err := strconv.Atoi(drawer[loc[2]:loc[3]])
		if err != nil {
			return ParsedLabel{}, fmt.Errorf("unable to parse label %q: %w", raw, err)
		}
		number = n
		drawer = drawer[:loc[0]]
	}

	if drawer == "" {
		return ParsedLabel{}, fmt.Errorf("unable to parse label %q: empty drawer", raw)
	}
	return ParsedLabel{Device: strings.ToUpper(device), Drawer: strings.ToUpper(drawer), Number: number}, nil
}
