package bootstrap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Location is a breakpoint location: either an absolute address or a
// symbol name. The zero value is not a valid location.
type Location struct {
	Addr   uint64
	Symbol string
}

// AddrLocation returns a location for the absolute address addr.
func AddrLocation(addr uint64) Location {
	return Location{Addr: addr}
}

// SymbolLocation returns a location for the symbol name.
func SymbolLocation(name string) Location {
	return Location{Symbol: name}
}

// IsAddr returns true if l is an absolute address.
func (l Location) IsAddr() bool {
	return l.Symbol == ""
}

// String returns l as a gdb linespec: "*0x80000000" for addresses, the
// bare name for symbols.
func (l Location) String() string {
	if l.IsAddr() {
		return fmt.Sprintf("*%#x", l.Addr)
	}
	return l.Symbol
}

var errEmptyLocation = errors.New("empty location")

// ParseLocation parses "0x80000000", "*0x80000000", "*2147483648" or a
// symbol name.
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Location{}, errEmptyLocation
	}
	star := strings.HasPrefix(s, "*")
	num := strings.TrimSpace(strings.TrimPrefix(s, "*"))
	if star || strings.HasPrefix(num, "0x") || strings.HasPrefix(num, "0X") {
		addr, err := strconv.ParseUint(num, 0, 64)
		if err != nil {
			return Location{}, fmt.Errorf("invalid address %q: %v", s, err)
		}
		return AddrLocation(addr), nil
	}
	if strings.ContainsAny(s, " \t\"") {
		return Location{}, fmt.Errorf("invalid symbol %q", s)
	}
	return SymbolLocation(s), nil
}

// MarshalText implements encoding.TextMarshaler.
func (l Location) MarshalText() ([]byte, error) {
	if l.IsAddr() {
		return []byte(fmt.Sprintf("%#x", l.Addr)), nil
	}
	return []byte(l.Symbol), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Location) UnmarshalText(text []byte) error {
	loc, err := ParseLocation(string(text))
	if err != nil {
		return err
	}
	*l = loc
	return nil
}
