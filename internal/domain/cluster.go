package domain

import "fmt"

type MetricConfig struct {
	Name     string  `json:"name"`
	Unit     Unit    `json:"unit"`
	Peak     float64 `json:"peak"`
	Normal   float64 `json:"normal"`
	Caution  float64 `json:"caution"`
	Alert    float64 `json:"alert"`
	Timestep int     `json:"timestep"`
	Scope    string  `json:"scope"`
}

type Unit struct {
	Base   string `json:"base"`
	Prefix string `json:"prefix,omitempty"`
}

type IntRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type FilterRanges struct {
	Duration  IntRange  `json:"duration"`
	NumNodes  IntRange  `json:"numNodes"`
	StartTime TimeRange `json:"startTime"`
}

type Accelerator struct {
	ID string `json:"id"`
}

type Topology struct {
	Accelerators []Accelerator `json:"accelerators"`
}

type Partition struct {
	Name            string   `json:"name"`
	ProcessorType   string   `json:"processorType"`
	SocketsPerNode  int      `json:"socketsPerNode"`
	CoresPerSocket  int      `json:"coresPerSocket"`
	ThreadsPerCore  int      `json:"threadsPerCore"`
	FlopRateScalar  int      `json:"flopRateScalar"`
	FlopRateSimd    int      `json:"flopRateSimd"`
	MemoryBandwidth int      `json:"memoryBandwidth"`
	Topology        Topology `json:"topology"`
}

type Cluster struct {
	Name         string         `json:"name"`
	MetricConfig []MetricConfig `json:"metricConfig"`
	FilterRanges FilterRanges   `json:"filterRanges"`
	Partitions   []Partition    `json:"partitions"`
}

func (c Cluster) Metric(name string) (MetricConfig, error) {
	for _, m := range c.MetricConfig {
		if m.Name == name {
			return m, nil
		}
	}
	return MetricConfig{}, fmt.Errorf("%w: %s on cluster %s", ErrMetricNotFound, name, c.Name)
}

func FindCluster(clusters []Cluster, name string) (Cluster, error) {
	for _, c := range clusters {
		if c.Name == name {
			return c, nil
		}
	}
	return Cluster{}, fmt.Errorf("%w: %s", ErrClusterNotFound, name)
}
