package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Genome is the persisted form of a signal network. Nodes are stored once and
// referenced by index, so shared providers and cycles survive a round trip.
type Genome struct {
	VersionedRecord
	ID         string       `json:"id"`
	Generation int          `json:"generation"`
	Nodes      []NodeRecord `json:"nodes"`
	Sensors    []int        `json:"sensors"`
	Decisions  []int        `json:"decisions"`
}

type NodeRecord struct {
	Kind      string    `json:"kind"`
	Transform string    `json:"transform,omitempty"`
	Params    []float64 `json:"params,omitempty"`
	Inputs    []int     `json:"inputs,omitempty"`
}

type LineageParent struct {
	Hash   string  `json:"hash"`
	Weight float64 `json:"weight"`
}

// LineageRecord references parents by hash only.
type LineageRecord struct {
	VersionedRecord
	Hash       string          `json:"hash"`
	Parents    []LineageParent `json:"parents,omitempty"`
	Generation int             `json:"generation"`
	Operation  string          `json:"operation,omitempty"`
	Fitness    float64         `json:"fitness,omitempty"`
}

type Population struct {
	VersionedRecord
	ID         string   `json:"id"`
	GenomeIDs  []string `json:"genome_ids"`
	Generation int      `json:"generation"`
}

type GenerationDiagnostics struct {
	Generation      int     `json:"generation"`
	BestFitness     float64 `json:"best_fitness"`
	MeanFitness     float64 `json:"mean_fitness"`
	MinFitness      float64 `json:"min_fitness"`
	MeanKinship     float64 `json:"mean_kinship"`
	DistinctGenomes int     `json:"distinct_genomes"`
	MeanNodeCount   float64 `json:"mean_node_count"`
	Discarded       int     `json:"discarded"`
	MeanGenerations float64 `json:"mean_generations"`
	CrossoverCount  int     `json:"crossover_count"`
	MutationCount   int     `json:"mutation_count"`
	EliteCount      int     `json:"elite_count"`
}

type TopGenomeRecord struct {
	Rank     int     `json:"rank"`
	Fitness  float64 `json:"fitness"`
	GenomeID string  `json:"genome_id"`
}

// RunSummary describes one evolution run.
type RunSummary struct {
	VersionedRecord
	RunID        string  `json:"run_id"`
	Scape        string  `json:"scape"`
	Seed         int64   `json:"seed"`
	Generations  int     `json:"generations"`
	BestFitness  float64 `json:"best_fitness"`
	BestGenomeID string  `json:"best_genome_id"`
	Discarded    int     `json:"discarded"`
}
