package metadata

/** @brief Entry point of a job. The returned value is handed to OnComplete. */
type JobStart func(params interface{}) (interface{}, error)

type JobOnComplete func(result interface{})

type JobOnFailure func(err error)

/** @brief Describes a unit of work executed by the job system. */
type JobTask struct {
	/** @brief Debug name of the job. */
	Name string
	/** @brief Invoked on a worker. Required. */
	OnStart JobStart
	/** @brief Invoked with the result when OnStart succeeds. Optional. */
	OnComplete JobOnComplete
	/** @brief Invoked when OnStart fails. Optional. */
	OnFailure JobOnFailure
	/** @brief Always invoked last. Optional. */
	OnCompletionCallback func()
	InputParams          interface{}
}
