package domain

import (
	"hash/fnv"
	"strings"
)

// Signature is a stable hash over a job's computational intent:
// jobType + operation + arguments. Two jobs with the same signature should
// succeed or fail identically (spec glossary: "Job signature").
//
// Always compared by value (int64 ==), never by reference — spec §9(c)
// calls out the original's reference-equality bug on boxed Longs as
// something not to replicate.
func Signature(jobType, operation string, arguments []string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(jobType))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(operation))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strings.Join(arguments, "\x1f")))
	return int64(h.Sum64())
}

func (j *Job) Signature() int64 {
	return Signature(j.JobType, j.Operation, decodeArguments(j.Arguments))
}
