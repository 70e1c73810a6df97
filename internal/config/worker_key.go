package config

type WorkerKeyStruct struct {
	PersistAnswersQueue   string
	PersistIntegrityQueue string
	PersistResultsQueue   string
	NotifyCandidatesQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:   "persist_answers_queue",
	PersistIntegrityQueue: "persist_integrity_queue",
	PersistResultsQueue:   "persist_results_queue",
	NotifyCandidatesQueue: "notify_candidates_queue",
}
