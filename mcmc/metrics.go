package mcmc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// proposalTotal counts proposals by proposer and outcome
	proposalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempering_proposal_total",
		Help: "Total proposals by proposer and outcome",
	}, []string{"proposer", "outcome"})

	// swapTotal counts swap proposals by lower chain of the pair and outcome
	swapTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempering_swap_total",
		Help: "Total chain swap proposals by pair and outcome",
	}, []string{"pair", "outcome"})

	// iterationTotal counts completed controller iterations
	iterationTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempering_iteration_total",
		Help: "Total completed iterations",
	})

	// verifyTotal counts from-scratch verifications by result
	verifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempering_verify_total",
		Help: "Total model verifications by result",
	}, []string{"result"})

	// checkpointTotal counts checkpoint writes by result
	checkpointTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempering_checkpoint_total",
		Help: "Total checkpoint writes by result",
	}, []string{"result"})
)
