package main

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartPoleReset(t *testing.T) {
	env := NewCartPole(rand.New(rand.NewSource(3)))
	obs := env.Reset()

	require.Len(t, obs, CartPoleStateDim)
	for i, v := range obs {
		assert.GreaterOrEqual(t, v, -0.05, "obs[%d]", i)
		assert.Less(t, v, 0.05, "obs[%d]", i)
	}
	assert.Zero(t, env.Steps())
}

func TestCartPoleSeededResetsRepeat(t *testing.T) {
	a := NewCartPole(rand.New(rand.NewSource(9)))
	b := NewCartPole(rand.New(rand.NewSource(9)))
	assert.Equal(t, a.Observation(), b.Observation())

	for i := 0; i < 10; i++ {
		oa, ra, da := a.Step(i % 2)
		ob, rb, db := b.Step(i % 2)
		assert.Equal(t, oa, ob)
		assert.Equal(t, ra, rb)
		assert.Equal(t, da, db)
	}
}

func TestCartPoleFallsWhenPushedOneWay(t *testing.T) {
	env := NewCartPole(nil)

	var (
		reward float64
		done   bool
	)
	for !done {
		_, reward, done = env.Step(1)
	}

	assert.Less(t, env.Steps(), CartPoleMaxSteps, "constant push should topple the pole early")
	assert.Zero(t, reward, "the step that drops the pole earns nothing")
}

func TestCartPolePushDirection(t *testing.T) {
	left := NewCartPole(rand.New(rand.NewSource(1)))
	right := NewCartPole(rand.New(rand.NewSource(1)))

	left.Step(0)
	right.Step(1)

	// x_dot is index 1
	assert.Less(t, left.Observation()[1], right.Observation()[1])
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 1, argmax([]float64{0.1, 0.9}))
	assert.Equal(t, 0, argmax([]float64{0.5, 0.5}))
	assert.Equal(t, 2, argmax([]float64{-3, -2, -1}))
	assert.Equal(t, -1, argmax(nil))
}
