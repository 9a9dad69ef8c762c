package main

import (
	"math"
	"math/rand"
)

// CartPole is the classic pole-balancing environment used to exercise the
// decision model end to end. Observations are (x, x_dot, theta, theta_dot)
// and there are two discrete actions: push left (0) or push right (1).
//
// Physics follow Barto, Sutton & Anderson (1983) with Euler integration.
type CartPole struct {
	x, xDot, theta, thetaDot float64
	steps                    int
	rng                      *rand.Rand
}

const (
	cartPoleGravity        = 9.81
	cartPoleMassCart       = 1.0
	cartPoleMassPole       = 0.1
	cartPoleTotalMass      = cartPoleMassCart + cartPoleMassPole
	cartPoleLength         = 0.5 // half the pole length
	cartPolePoleMassLength = cartPoleMassPole * cartPoleLength
	cartPoleForce          = 10.0
	cartPoleTau            = 0.02

	cartPoleXThreshold     = 2.4
	cartPoleThetaThreshold = 12.0 * math.Pi / 180.0

	// CartPoleMaxSteps is the episode length cap.
	CartPoleMaxSteps = 500

	// CartPoleStateDim and CartPoleActions size a model for this environment.
	CartPoleStateDim = 4
	CartPoleActions  = 2
)

// NewCartPole creates an environment. A nil rng uses a fixed seed.
func NewCartPole(rng *rand.Rand) *CartPole {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	env := &CartPole{rng: rng}
	env.Reset()
	return env
}

// Reset starts a new episode and returns the first observation.
func (e *CartPole) Reset() []float64 {
	e.x = e.rng.Float64()*0.1 - 0.05
	e.xDot = e.rng.Float64()*0.1 - 0.05
	e.theta = e.rng.Float64()*0.1 - 0.05
	e.thetaDot = e.rng.Float64()*0.1 - 0.05
	e.steps = 0
	return e.Observation()
}

// Observation returns the current state vector.
func (e *CartPole) Observation() []float64 {
	return []float64{e.x, e.xDot, e.theta, e.thetaDot}
}

// Step applies action and returns the next observation, the reward and
// whether the episode is over. Reward is 1 for every step the pole stays up.
func (e *CartPole) Step(action int) ([]float64, float64, bool) {
	force := cartPoleForce
	if action == 0 {
		force = -cartPoleForce
	}

	cosTheta := math.Cos(e.theta)
	sinTheta := math.Sin(e.theta)

	temp := (force + cartPolePoleMassLength*e.thetaDot*e.thetaDot*sinTheta) / cartPoleTotalMass
	thetaAcc := (cartPoleGravity*sinTheta - cosTheta*temp) /
		(cartPoleLength * (4.0/3.0 - cartPoleMassPole*cosTheta*cosTheta/cartPoleTotalMass))
	xAcc := temp - cartPolePoleMassLength*thetaAcc*cosTheta/cartPoleTotalMass

	e.x += cartPoleTau * e.xDot
	e.xDot += cartPoleTau * xAcc
	e.theta += cartPoleTau * e.thetaDot
	e.thetaDot += cartPoleTau * thetaAcc
	e.steps++

	fell := e.x < -cartPoleXThreshold || e.x > cartPoleXThreshold ||
		e.theta < -cartPoleThetaThreshold || e.theta > cartPoleThetaThreshold
	done := fell || e.steps >= CartPoleMaxSteps

	reward := 1.0
	if fell {
		reward = 0.0
	}
	return e.Observation(), reward, done
}

// Steps returns the number of steps taken in the current episode.
func (e *CartPole) Steps() int {
	return e.steps
}

// argmax returns the index of the maximum value.
func argmax(data []float64) int {
	if len(data) == 0 {
		return -1
	}

	maxIdx := 0
	for i := 1; i < len(data); i++ {
		if data[i] > data[maxIdx] {
			maxIdx = i
		}
	}
	return maxIdx
}
