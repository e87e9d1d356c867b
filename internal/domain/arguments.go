package domain

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// EncodeArguments stores an ordered argument list as a JSON array column.
func EncodeArguments(args []string) datatypes.JSON {
	if args == nil {
		args = []string{}
	}
	b, _ := json.Marshal(args)
	return datatypes.JSON(b)
}

func decodeArguments(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// ArgumentList decodes the job's ordered argument list.
func (j *Job) ArgumentList() []string {
	return decodeArguments(j.Arguments)
}
