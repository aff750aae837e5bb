package signaling

// Handler implements the six signaling operations against whatever state
// backs peer presence and pending offer/answer tracking (spec §4.7
// "Signaling implementations MUST provide").
type Handler interface {
	Announce(peerID string, capabilities []string, userData any) (AnnounceResult, error)
	Offer(p OfferParams) error
	Answer(p OfferParams) error
	ICECandidate(p ICECandidateParams) error
	Disconnect(p DisconnectParams) error
	ListPeers() []ListPeersResult
}
