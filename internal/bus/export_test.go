package bus

func (n *NSQ) ConnectsDirect(topic string) bool { return n.connectsDirect(topic) }
