package probe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var kallsymsPath = "/proc/kallsyms"

// SymbolAddrs resolves kernel symbol names to their addresses, used to key
// the probe configuration by symbol address the way the samples report it.
// Symbols missing from kallsyms are simply absent from the result; the
// caller decides whether that is fatal.
func SymbolAddrs(names []string) (map[string]uint64, error) {
	f, err := os.Open(kallsymsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readSymbolAddrs(f, names)
}

func readSymbolAddrs(r io.Reader, names []string) (map[string]uint64, error) {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	addrs := make(map[string]uint64)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		// Lines look like "ffffffff81b52510 T kfree_skb_reason".
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if !wanted[fields[2]] {
			continue
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			continue
		}
		addrs[fields[2]] = addr
		if len(addrs) == len(wanted) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading kallsyms: %v", err)
	}
	return addrs, nil
}
