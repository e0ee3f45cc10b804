// Package denylist holds the set of blocked domain names. The set is built
// once at startup and never mutated afterwards, so lookups take no lock.
package denylist

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/treemana/sieve/log"
	"github.com/treemana/sieve/model"
)

//go:embed denylist.txt
var bundled string

type Store struct {
	m map[string]struct{}
}

// Default returns the list compiled into the binary.
func Default() (*Store, error) {
	return Load(strings.NewReader(bundled))
}

func LoadFile(path string) (*Store, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open denylist: %w", err)
	}
	defer func() { _ = file.Close() }()

	s, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("read denylist %s: %w", path, err)
	}

	return s, nil
}

// maxLine bounds a rule line, far above the 253 bytes of a domain name.
const maxLine = 4 << 10

// Load reads one adblock style rule per line. The "||" prefix and "^" suffix
// are stripped and the rest is stored as an exact domain. Lines longer than
// maxLine are skipped with a warning.
func Load(r io.Reader) (*Store, error) {
	s := &Store{m: make(map[string]struct{})}

	reader := bufio.NewReaderSize(r, maxLine)
	var n, skipped int
	for {
		line, isPrefix, err := reader.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		n++

		if isPrefix {
			// drain the rest of the oversized line
			for isPrefix && err == nil {
				_, isPrefix, err = reader.ReadLine()
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			log.Sugar.Warnf("denylist line %d longer than %d bytes, skipped", n, maxLine)
			skipped++
			continue
		}

		domain := parseLine(string(line))
		if len(domain) == 0 {
			continue
		}
		s.m[domain] = struct{}{}
	}

	log.Sugar.Debugf("denylist loaded, %d domains, %d lines skipped", len(s.m), skipped)

	return s, nil
}

func parseLine(line string) string {
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return ""
	}

	switch line[0] {
	case '!', '#', '[':
		// comment or list header
		return ""
	}

	line = strings.TrimPrefix(line, "||")
	line = strings.TrimSuffix(line, "^")

	return model.Normalize(line)
}

// Contains reports an exact match, subdomains of a listed domain are not
// blocked.
func (s *Store) Contains(domain string) bool {
	if s == nil {
		return false
	}

	_, ok := s.m[model.Normalize(domain)]
	return ok
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}
