// Package bitwork implements the protocol's difficulty target: a pair of
// (matching nibble count, next-nibble floor) compared against the
// reversed orientation of a double-SHA256 digest. See spec §3 and §4.A.
package bitwork

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxPre is the largest number of matching hex nibbles a target can require.
const MaxPre = 64

// MaxPost is the largest next-nibble floor a target can require.
const MaxPost = 15

// Bitwork is a difficulty target: Pre matching hex nibbles plus a floor
// on the (Pre+1)-th nibble.
type Bitwork struct {
	Pre  uint64
	Post uint8
}

// Zero is the easiest possible target.
var Zero = Bitwork{Pre: 0, Post: 0}

// Max is the hardest possible target.
var Max = Bitwork{Pre: MaxPre, Post: 0}

// New validates and constructs a Bitwork.
func New(pre uint64, post uint8) (Bitwork, error) {
	if pre > MaxPre {
		return Bitwork{}, fmt.Errorf("bitwork: pre %d exceeds max %d", pre, MaxPre)
	}
	if post > MaxPost {
		return Bitwork{}, fmt.Errorf("bitwork: post %d exceeds max %d", post, MaxPost)
	}
	if pre == MaxPre && post != 0 {
		return Bitwork{}, fmt.Errorf("bitwork: post must be 0 when pre is %d", MaxPre)
	}
	return Bitwork{Pre: pre, Post: post}, nil
}

// Parse decodes the textual form "<pre>.<post_hex>", e.g. "6.a".
func Parse(s string) (Bitwork, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return Bitwork{}, fmt.Errorf("bitwork: malformed %q, want \"<pre>.<post_hex>\"", s)
	}
	pre, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Bitwork{}, fmt.Errorf("bitwork: invalid pre %q: %w", parts[0], err)
	}
	postVal, err := strconv.ParseUint(parts[1], 16, 8)
	if err != nil {
		return Bitwork{}, fmt.Errorf("bitwork: invalid post %q: %w", parts[1], err)
	}
	return New(pre, uint8(postVal))
}

// String renders the textual form "<pre>.<post_hex>".
func (b Bitwork) String() string {
	return fmt.Sprintf("%d.%x", b.Pre, b.Post)
}

// Ordinal is the total order key: Pre*16 + Post.
func (b Bitwork) Ordinal() uint64 {
	return b.Pre*16 + uint64(b.Post)
}

// Less reports whether b is strictly easier than other.
func (b Bitwork) Less(other Bitwork) bool {
	return b.Ordinal() < other.Ordinal()
}

// PlusOne returns the next-harder target, saturating at Max.
func (b Bitwork) PlusOne() Bitwork {
	if b == Max {
		return Max
	}
	if b.Post == MaxPost {
		return Bitwork{Pre: b.Pre + 1, Post: 0}
	}
	return Bitwork{Pre: b.Pre, Post: b.Post + 1}
}

// MinusOne returns the next-easier target, saturating at Zero.
func (b Bitwork) MinusOne() Bitwork {
	if b == Zero {
		return Zero
	}
	if b.Post == 0 {
		return Bitwork{Pre: b.Pre - 1, Post: MaxPost}
	}
	return Bitwork{Pre: b.Pre, Post: b.Post - 1}
}

// FromHeight computes the difficulty target scheduled for a block height,
// given the retarget epoch length, saturating at Max.
func FromHeight(height, epoch uint64) Bitwork {
	if epoch == 0 {
		return Zero
	}
	steps := height / epoch
	pre := steps / 16
	post := uint8(steps % 16)
	if pre >= MaxPre {
		return Max
	}
	return Bitwork{Pre: pre, Post: post}
}
