/*
Package sched implements the Scheduler Manager (§4.D): the component that
periodically (or on demand) asks a schedpol.Policy to produce a new
schedule, then hands the result to whatever Handoff was registered at
construction. It owns no scheduling logic itself — only the cycle
lifecycle, the accounter view the policy books into, and the Prometheus
counters/histograms a cycle produces.
*/
package sched
