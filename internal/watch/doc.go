// Package watch provides file-watching for assetflow. Paths are grouped into
// named watch sets, each a list of glob patterns relative to a root
// directory. Raw file-system notifications are filtered, matched against
// every set, debounced per set, and delivered as one Event per quiet period.
//
// The supervisor uses two sets (the dependency manifest and the workflow
// source) and the watch task uses one set per task it re-runs.
package watch
