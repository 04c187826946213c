package transform

import (
	"fmt"
	"strings"

	"featurekit/internal/engine"

	"github.com/rs/zerolog/log"
)

// LookupJoiner left-joins a reference table read from disk onto its input.
type LookupJoiner struct {
	// Keys are the join columns of the input table.
	Keys []string
	// LookupKeys are the matching columns of the lookup table, in the same
	// order as Keys. Empty means Keys.
	LookupKeys []string
	// KeepColumns limits the lookup columns carried over. Empty keeps every
	// non-key column.
	KeepColumns []string
	Path        string
	Format      engine.Format
	// AsString casts the keys on both sides to text before matching.
	AsString bool
	Prefix   string
	Suffix   string

	state    state
	lookup   *engine.Table
	retained []string
	index    map[string]int
	fitted   *engine.Table
}

func (j *LookupJoiner) Name() string { return "lookup" }

// Fit re-reads the lookup table so edits on disk are picked up, prepares the
// renamed lookup columns and joins them onto t.
func (j *LookupJoiner) Fit(t *engine.Table) error {
	if len(j.Keys) == 0 {
		return &ValidationError{Transform: j.Name(), Reason: "no key columns configured"}
	}
	lookupKeys := j.LookupKeys
	if len(lookupKeys) == 0 {
		lookupKeys = j.Keys
	}
	if len(lookupKeys) != len(j.Keys) {
		return &ValidationError{
			Transform: j.Name(),
			Columns:   lookupKeys,
			Reason:    fmt.Sprintf("lookup keys must pair with the %d input keys", len(j.Keys)),
		}
	}
	if _, absent := partition(t, j.Keys); len(absent) > 0 {
		return &MissingColumnsError{Transform: j.Name(), Columns: absent}
	}

	var opts engine.CSVOptions
	if j.AsString {
		opts.TextColumns = lookupKeys
	}
	raw, err := engine.Load(j.Path, j.Format, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", j.Name(), err)
	}
	if _, absent := partition(raw, lookupKeys); len(absent) > 0 {
		return &MissingColumnsError{Transform: j.Name(), Columns: absent}
	}

	// Key columns never come through as retained columns.
	isKey := make(map[string]bool, 2*len(j.Keys))
	for i := range j.Keys {
		isKey[j.Keys[i]] = true
		isKey[lookupKeys[i]] = true
	}
	var keep []string
	if len(j.KeepColumns) > 0 {
		var requested []string
		for _, n := range j.KeepColumns {
			if !isKey[n] {
				requested = append(requested, n)
			}
		}
		present, absent := partition(raw, requested)
		if len(absent) > 0 {
			return &MissingColumnsError{Transform: j.Name(), Columns: absent}
		}
		keep = present
	} else {
		for _, n := range raw.Names() {
			if !isKey[n] {
				keep = append(keep, n)
			}
		}
	}

	// Rename lookup keys to the input key names, then decorate the rest.
	cols := make([]*engine.Column, 0, len(j.Keys)+len(keep))
	for i, lk := range lookupKeys {
		c, _ := raw.Column(lk)
		if j.AsString {
			c = c.AsText()
		}
		cols = append(cols, c.Renamed(j.Keys[i]))
	}
	retained := make([]string, 0, len(keep))
	for _, n := range keep {
		c, _ := raw.Column(n)
		name := j.Prefix + n + j.Suffix
		retained = append(retained, name)
		cols = append(cols, c.Renamed(name))
	}
	lookup, err := engine.NewTable(cols...)
	if err != nil {
		return fmt.Errorf("%s: %w", j.Name(), err)
	}

	keyCols := cols[:len(j.Keys)]
	index := make(map[string]int, lookup.NumRows())
	for r := 0; r < lookup.NumRows(); r++ {
		k, ok := compositeKey(keyCols, r)
		if !ok {
			continue
		}
		if _, dup := index[k]; !dup {
			index[k] = r
		}
	}
	if dups := lookup.NumRows() - len(index); dups > 0 {
		log.Debug().Str("transform", j.Name()).Int("rows", dups).
			Msg("lookup rows with null or repeated keys ignored")
	}

	prev := *j
	j.lookup, j.retained, j.index = lookup, retained, index
	joined, err := j.join(t)
	if err != nil {
		*j = prev
		return err
	}
	j.fitted = joined
	j.state = fitted
	return nil
}

// Transform joins the lookup prepared by Fit onto t.
func (j *LookupJoiner) Transform(t *engine.Table) (*engine.Table, error) {
	if j.state != fitted {
		return nil, &NotFittedError{Transform: j.Name()}
	}
	return j.join(t)
}

// Fitted returns the joined table produced during Fit.
func (j *LookupJoiner) Fitted() (*engine.Table, error) {
	if j.state != fitted {
		return nil, &NotFittedError{Transform: j.Name()}
	}
	return j.fitted, nil
}

func (j *LookupJoiner) join(t *engine.Table) (*engine.Table, error) {
	base := t
	keyCols := make([]*engine.Column, len(j.Keys))
	for i, k := range j.Keys {
		c, ok := base.Column(k)
		if !ok {
			return nil, &MissingColumnsError{Transform: j.Name(), Columns: []string{k}}
		}
		if j.AsString && c.Kind != engine.KindObject {
			c = c.AsText()
			var err error
			if base, err = base.Replace(k, c); err != nil {
				return nil, err
			}
		}
		keyCols[i] = c
	}

	idx := make([]int, base.NumRows())
	matched := 0
	for i := range idx {
		idx[i] = -1
		k, ok := compositeKey(keyCols, i)
		if !ok {
			continue
		}
		if r, found := j.index[k]; found {
			idx[i] = r
			matched++
		}
	}

	// Name clashes with input columns get _x (input) and _y (lookup).
	renames := make(map[string]string)
	added := make([]*engine.Column, 0, len(j.retained))
	for _, name := range j.retained {
		c, _ := j.lookup.Column(name)
		taken := c.Take(idx)
		if base.Has(name) {
			renames[name] = name + "_x"
			taken = taken.Renamed(name + "_y")
		}
		added = append(added, taken)
	}
	if len(renames) > 0 {
		var err error
		if base, err = base.Rename(renames); err != nil {
			return nil, err
		}
	}

	out, err := base.AddColumns(added...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", j.Name(), err)
	}
	log.Debug().Str("transform", j.Name()).Int("rows", len(idx)).Int("matched", matched).Msg("lookup joined")
	return out, nil
}

func compositeKey(cols []*engine.Column, row int) (string, bool) {
	if len(cols) == 1 {
		return cols[0].Key(row)
	}
	parts := make([]string, len(cols))
	for i, c := range cols {
		k, ok := c.Key(row)
		if !ok {
			return "", false
		}
		parts[i] = k
	}
	return strings.Join(parts, "\x1f"), true
}
