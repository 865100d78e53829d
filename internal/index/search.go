// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package index

import (
	"math"
	"sort"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
	// tableBoost weights terms that appear in the table name itself.
	tableBoost = 2.0
)

// Hit is one search result.
type Hit struct {
	Document
	Score float64 `json:"score"`
}

type indexedDoc struct {
	doc    Document
	tf     map[string]int
	length int
	name   map[string]bool
}

// corpus holds the per-document term statistics used for scoring.
type corpus struct {
	docs  []indexedDoc
	df    map[string]int
	avgDL float64
}

func newCorpus(docs []Document) *corpus {
	c := &corpus{df: map[string]int{}}
	total := 0
	for _, d := range docs {
		toks := Tokenize(d.Text)
		idx := indexedDoc{doc: d, tf: map[string]int{}, length: len(toks), name: map[string]bool{}}
		for _, tok := range toks {
			idx.tf[tok]++
		}
		for _, tok := range Tokenize(d.Table) {
			idx.name[tok] = true
		}
		for tok := range idx.tf {
			c.df[tok]++
		}
		total += len(toks)
		c.docs = append(c.docs, idx)
	}
	if len(docs) > 0 {
		c.avgDL = float64(total) / float64(len(docs))
	}
	return c
}

func (c *corpus) size() int { return len(c.docs) }

// search returns the k best documents for query. When nothing overlaps the
// query, the first k documents are returned with zero scores so generation
// still sees some schema.
func (c *corpus) search(query string, k int) []Hit {
	if k <= 0 || len(c.docs) == 0 {
		return nil
	}
	terms := Tokenize(query)
	n := float64(len(c.docs))
	hits := make([]Hit, 0, len(c.docs))
	for _, d := range c.docs {
		var score float64
		for _, term := range terms {
			tf := float64(d.tf[term])
			if tf == 0 {
				continue
			}
			df := float64(c.df[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(d.length)/c.avgDL))
			if d.name[term] {
				norm *= tableBoost
			}
			score += idf * norm
		}
		hits = append(hits, Hit{Document: d.doc, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if k > len(hits) {
		k = len(hits)
	}
	if hits[0].Score == 0 {
		return hits[:k]
	}
	out := hits[:0]
	for _, h := range hits[:k] {
		if h.Score > 0 {
			out = append(out, h)
		}
	}
	return out
}
