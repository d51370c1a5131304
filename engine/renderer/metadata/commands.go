package metadata

type CommandBufferState uint32

const (
	COMMAND_BUFFER_STATE_READY CommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type IndexType uint32

const (
	INDEX_TYPE_UINT16 IndexType = iota
	INDEX_TYPE_UINT32
)

/** @brief A batch of command buffers submitted to the graphics queue. */
type SubmitInfo struct {
	CommandBuffers   []Handle
	WaitSemaphores   []Handle
	WaitStages       []PipelineStage
	SignalSemaphores []Handle
	/** @brief Signaled once every command buffer of the batch completed. */
	Fence Handle
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}
